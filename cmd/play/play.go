// play.go play command code
package play

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulsebridge/internal/bridge"
	"github.com/tphakala/pulsebridge/internal/conf"
)

// Command creates the play command
func Command(settings *conf.Settings) *cobra.Command {
	opts := bridge.PlayOptions{Device: -1}

	cmd := &cobra.Command{
		Use:   "play [input.wav|input.flac]",
		Short: "Play a WAV or FLAC file",
		Long:  `Play a PCM WAV or FLAC file through a blocking output stream. Files ending in .flac are decoded as FLAC. Interrupting aborts playback.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bridge.Open(cmd.Context(), settings, bridge.Options{ServeMetrics: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := bridge.PlayFile(cmd.Context(), rt, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "played %d frames (%d Hz, %d channels) in %s, cpu load %.2f\n",
				result.Frames, result.SampleRate, result.Channels, result.Duration.Round(time.Millisecond), result.CPULoad)
			return nil
		},
	}

	setupFlags(cmd, &opts)

	return cmd
}

// setupFlags configures flags specific to the play command
func setupFlags(cmd *cobra.Command, opts *bridge.PlayOptions) {
	cmd.Flags().IntVar(&opts.Device, "device", opts.Device, "Output device index, -1 for the default device")
	cmd.Flags().DurationVar(&opts.Latency, "suggested-latency", 0, "Suggested output latency, 0 for the configured default")
	cmd.Flags().IntVar(&opts.ChunkFrames, "frames", bridge.DefaultChunkFrames, "Frames per write")
}
