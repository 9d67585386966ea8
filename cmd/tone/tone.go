// tone.go tone command code
package tone

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulsebridge/internal/bridge"
	"github.com/tphakala/pulsebridge/internal/conf"
)

// Command creates the tone command
func Command(settings *conf.Settings) *cobra.Command {
	opts := bridge.ToneOptions{Device: -1}

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a sine wave",
		Long:  `Play a sine wave through a callback mode output stream.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bridge.Open(cmd.Context(), settings, bridge.Options{ServeMetrics: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			_, err = bridge.PlayTone(cmd.Context(), rt, opts)
			return err
		},
	}

	cmd.Flags().IntVar(&opts.Device, "device", opts.Device, "Output device index, -1 for the default device")
	cmd.Flags().Float64VarP(&opts.Frequency, "frequency", "f", 440, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&opts.Amplitude, "amplitude", 0.5, "Peak amplitude between 0 and 1")
	cmd.Flags().DurationVarP(&opts.Duration, "duration", "t", 2*time.Second, "Tone length")
	cmd.Flags().DurationVar(&opts.Latency, "suggested-latency", 0, "Suggested output latency, 0 for the configured default")
	cmd.Flags().IntVar(&opts.FramesPerBuffer, "frames", 0, "Frames per callback, 0 for variable")

	return cmd
}
