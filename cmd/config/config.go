// config.go config command code
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulsebridge/internal/conf"
)

// Command creates the config parent command
func Command(settings *conf.Settings) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and write the configuration",
	}

	configCmd.AddCommand(showCommand(settings), writeCommand(settings))

	return configCmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.YAML()
			if err != nil {
				return err
			}
			if used := conf.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func writeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "write [config.yaml]",
		Short: "Write the effective configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.SaveYAMLConfig(args[0], settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", args[0])
			return nil
		},
	}
}
