// check.go check command code
package check

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/pulsebridge/internal/bridge"
	"github.com/tphakala/pulsebridge/internal/conf"
)

// Command creates the check command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that the default devices can stream",
		Long:  `Open, start and stop a short blocking stream on the default input and output devices.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bridge.Open(cmd.Context(), settings, bridge.Options{})
			if err != nil {
				return err
			}
			defer rt.Close()

			_, err = bridge.Check(cmd.Context(), rt, cmd.OutOrStdout())
			return err
		},
	}
}
