// record.go record command code
package record

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulsebridge/internal/bridge"
	"github.com/tphakala/pulsebridge/internal/conf"
)

// Command creates the record command
func Command(settings *conf.Settings) *cobra.Command {
	opts := bridge.RecordOptions{Device: -1}

	cmd := &cobra.Command{
		Use:   "record [output.wav]",
		Short: "Record to a WAV file",
		Long:  `Capture 16 bit PCM from a blocking input stream. Interrupting ends the recording and keeps what was captured.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bridge.Open(cmd.Context(), settings, bridge.Options{ServeMetrics: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := bridge.RecordFile(cmd.Context(), rt, args[0], opts)
			if err != nil && cmd.Context().Err() == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d frames (%d Hz, %d channels) to %s\n",
				result.Frames, result.SampleRate, result.Channels, args[0])
			return nil
		},
	}

	setupFlags(cmd, &opts)

	return cmd
}

// setupFlags configures flags specific to the record command
func setupFlags(cmd *cobra.Command, opts *bridge.RecordOptions) {
	cmd.Flags().IntVar(&opts.Device, "device", opts.Device, "Input device index, -1 for the default device")
	cmd.Flags().DurationVarP(&opts.Duration, "duration", "t", 5*time.Second, "Recording length")
	cmd.Flags().IntVar(&opts.Channels, "channels", 0, "Channel count, 0 for the device's channels")
	cmd.Flags().IntVar(&opts.SampleRate, "rate", 0, "Sample rate, 0 for the device's rate")
	cmd.Flags().DurationVar(&opts.Latency, "suggested-latency", 0, "Suggested input latency, 0 for the configured default")
	cmd.Flags().IntVar(&opts.ChunkFrames, "frames", bridge.DefaultChunkFrames, "Frames per read")
}
