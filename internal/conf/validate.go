// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"net"
	"slices"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateClientSettings,
		validateBackendSettings,
		validateSessionSettings,
		validateStreamSettings,
		validateLatencySettings,
		validateLoggingSettings,
		validateTelemetrySettings,
		validateMetricsSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateClientSettings(settings *Settings) error {
	if settings.Client.Name == "" {
		return errors.New("client name must not be empty")
	}
	return nil
}

func isBackend(name string) bool {
	return name == BackendPulse || name == BackendMiniaudio || name == BackendFake
}

func validateBackendSettings(settings *Settings) error {
	if !isBackend(settings.Backend.Type) {
		return fmt.Errorf("backend type must be %s, %s or %s, got %q",
			BackendPulse, BackendMiniaudio, BackendFake, settings.Backend.Type)
	}
	return nil
}

func validateSessionSettings(settings *Settings) error {
	var errs []string
	s := settings.Session

	if s.PollInterval <= 0 {
		errs = append(errs, "poll interval must be positive")
	}
	if s.ConnectTimeout <= 0 {
		errs = append(errs, "connect timeout must be positive")
	}
	if s.ConnectTimeout > 0 && s.PollInterval > s.ConnectTimeout {
		errs = append(errs, "poll interval must not exceed the connect timeout")
	}
	if s.EventQueueSize <= 0 {
		errs = append(errs, "event queue size must be positive")
	}
	if settings.Devices.Capacity <= 0 {
		errs = append(errs, "device capacity must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("session settings errors: %v", errs)
	}
	return nil
}

func validateStreamSettings(settings *Settings) error {
	var errs []string
	s := settings.Stream

	if s.RingBufferFrames <= 0 {
		errs = append(errs, "ring buffer frames must be positive")
	}
	if s.MaxRingBufferBytes <= 0 {
		errs = append(errs, "maximum ring buffer bytes must be positive")
	}
	if s.DefaultLatency <= 0 {
		errs = append(errs, "default latency must be positive")
	}
	if settings.Latency.Ceiling > 0 && s.DefaultLatency > settings.Latency.Ceiling {
		errs = append(errs, "default latency must not exceed the latency ceiling")
	}
	if s.DrainTimeout <= 0 {
		errs = append(errs, "drain timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("stream settings errors: %v", errs)
	}
	return nil
}

func validateLatencySettings(settings *Settings) error {
	var errs []string
	l := settings.Latency

	if l.UnderflowThreshold < 1 {
		errs = append(errs, "underflow threshold must be at least 1")
	}
	if l.GrowthDenominator < 1 {
		errs = append(errs, "growth denominator must be at least 1")
	}
	if l.GrowthNumerator <= l.GrowthDenominator {
		errs = append(errs, "growth numerator must be greater than the denominator")
	}
	if l.Ceiling <= 0 {
		errs = append(errs, "latency ceiling must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("latency settings errors: %v", errs)
	}
	return nil
}

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

func isLogLevel(level string) bool {
	return slices.Contains(logLevels, level)
}

func validateLoggingSettings(settings *Settings) error {
	var errs []string
	l := settings.Logging

	if l.DefaultLevel != "" && !isLogLevel(l.DefaultLevel) {
		errs = append(errs, fmt.Sprintf("invalid default log level %q", l.DefaultLevel))
	}
	if l.Console != nil && l.Console.Level != "" && !isLogLevel(l.Console.Level) {
		errs = append(errs, fmt.Sprintf("invalid console log level %q", l.Console.Level))
	}
	if l.FileOutput != nil && l.FileOutput.Enabled {
		if l.FileOutput.Path == "" {
			errs = append(errs, "log file path is required when file output is enabled")
		}
		if l.FileOutput.Level != "" && !isLogLevel(l.FileOutput.Level) {
			errs = append(errs, fmt.Sprintf("invalid file log level %q", l.FileOutput.Level))
		}
	}
	for module, level := range l.ModuleLevels {
		if !isLogLevel(level) {
			errs = append(errs, fmt.Sprintf("invalid log level %q for module %s", level, module))
		}
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return fmt.Errorf("logging settings errors: %v", errs)
	}
	return nil
}

func validateTelemetrySettings(settings *Settings) error {
	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		return errors.New("telemetry DSN is required when telemetry is enabled")
	}
	return nil
}

func validateMetricsSettings(settings *Settings) error {
	if !settings.Metrics.Enabled {
		return nil
	}
	if _, port, err := net.SplitHostPort(settings.Metrics.Listen); err != nil || port == "" {
		return fmt.Errorf("metrics listen address must be host:port, got %q", settings.Metrics.Listen)
	}
	return nil
}
