// devices.go devices command code
package devices

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/pulsebridge/internal/bridge"
	"github.com/tphakala/pulsebridge/internal/conf"
)

// Command creates the devices command
func Command(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the audio server's devices",
		Long:  `Connect to the audio server, enumerate its sinks and sources and print the device table.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bridge.Open(cmd.Context(), settings, bridge.Options{})
			if err != nil {
				return err
			}
			defer rt.Close()

			return bridge.WriteDevices(cmd.OutOrStdout(), bridge.NewDeviceReport(rt.API), format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", bridge.FormatTable, "Output format: table, yaml, json")

	return cmd
}
