// env.go - Environment variable configuration and validation for pulsebridge
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix prefixes automatic environment keys, PULSEBRIDGE_STREAM_DRAINTIMEOUT
const envPrefix = "PULSEBRIDGE"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the short-named environment variables. Every other
// key is reachable through the automatic PULSEBRIDGE_ prefix. A short name
// must never equal the prefixed name of a top level section such as
// PULSEBRIDGE_BACKEND, or AutomaticEnv resolves the whole section to it.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PULSEBRIDGE_DEBUG", validateEnvBool},
		{"client.name", "PULSEBRIDGE_CLIENT_NAME", nil},

		// Backend selection
		{"backend.type", "PULSEBRIDGE_BACKEND_TYPE", validateEnvBackend},
		{"backend.server", "PULSEBRIDGE_SERVER", nil},

		// Timing
		{"session.connecttimeout", "PULSEBRIDGE_CONNECT_TIMEOUT", validateEnvDuration},
		{"stream.defaultlatency", "PULSEBRIDGE_STREAM_LATENCY", validateEnvDuration},
		{"latency.ceiling", "PULSEBRIDGE_LATENCY_CEILING", validateEnvDuration},
		{"devices.capacity", "PULSEBRIDGE_DEVICE_CAPACITY", validateEnvPositiveInt},

		// Observability
		{"logging.default_level", "PULSEBRIDGE_LOG_LEVEL", validateEnvLogLevel},
		{"telemetry.dsn", "PULSEBRIDGE_SENTRY_DSN", nil},
		{"metrics.enabled", "PULSEBRIDGE_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "PULSEBRIDGE_METRICS_LISTEN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	bindings := getEnvBindings()
	var warnings []string

	for _, binding := range bindings {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration '%s': use a unit such as 20ms or 2s", value)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer '%s'", value)
	}
	if n <= 0 {
		return fmt.Errorf("value must be positive, got %d", n)
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !isBackend(strings.TrimSpace(value)) {
		return fmt.Errorf("backend must be one of %s, %s or %s, got '%s'", BackendPulse, BackendMiniaudio, BackendFake, value)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	if !isLogLevel(strings.TrimSpace(value)) {
		return fmt.Errorf("log level must be trace, debug, info, warn or error, got '%s'", value)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}
