package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/pulsebridge/cmd/check"
	"github.com/tphakala/pulsebridge/cmd/config"
	"github.com/tphakala/pulsebridge/cmd/devices"
	"github.com/tphakala/pulsebridge/cmd/play"
	"github.com/tphakala/pulsebridge/cmd/record"
	"github.com/tphakala/pulsebridge/cmd/tone"
	"github.com/tphakala/pulsebridge/internal/buildinfo"
	"github.com/tphakala/pulsebridge/internal/conf"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "pulsebridge",
		Short:         "PulseAudio host API bridge",
		Long:          `Enumerate PulseAudio devices and move audio through the synchronous host API.`,
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		devices.Command(settings),
		check.Command(settings),
		play.Command(settings),
		record.Command(settings),
		tone.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings, build, configFile)
	}

	return rootCmd
}

// initialize loads the configuration, with changed flags taking precedence,
// and sets up logging and telemetry before any subcommand runs
func initialize(settings *conf.Settings, build *buildinfo.Context, configFile string) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(cl)

	if settings.Telemetry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.DSN, settings.Telemetry.Environment, build.GetVersion()); err != nil {
			cl.Module("main").Warn("telemetry disabled", logger.Error(err))
		}
	}

	if used := conf.ConfigFileUsed(); used != "" {
		cl.Module("main").Debug("configuration loaded", logger.String("path", used))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface.
// They are bound to viper keys, so a flag given on the command line
// overrides the configuration file and the environment.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", "", "Audio server client: pulse, miniaudio or fake")
	flags.String("server", "", "Audio server address, empty for the default server")
	flags.Duration("latency", 0, "Default stream latency")
	flags.String("log-level", "", "Default log level: trace, debug, info, warn, error")
	flags.Bool("metrics", false, "Serve Prometheus metrics while streaming")

	bindings := map[string]string{
		"debug":                 "debug",
		"backend.type":          "backend",
		"backend.server":        "server",
		"stream.defaultlatency": "latency",
		"logging.default_level": "log-level",
		"metrics.enabled":       "metrics",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Execute runs the root command until it finishes or the process is
// interrupted, then flushes telemetry and closes the logger
func Execute(settings *conf.Settings, build *buildinfo.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := RootCommand(settings, build).ExecuteContext(ctx)

	errors.FlushSentry(sentryFlushTimeout)
	if closeErr := logger.Global().Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
