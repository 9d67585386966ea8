package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/logger"
)

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr string
	}{
		{"defaults", func(*Settings) {}, ""},
		{"empty client name", func(s *Settings) { s.Client.Name = "" }, "client name"},
		{"unknown backend", func(s *Settings) { s.Backend.Type = "jack" }, "backend type"},
		{"zero poll interval", func(s *Settings) { s.Session.PollInterval = 0 }, "poll interval must be positive"},
		{"poll longer than timeout", func(s *Settings) { s.Session.PollInterval = time.Minute }, "must not exceed the connect timeout"},
		{"zero queue", func(s *Settings) { s.Session.EventQueueSize = 0 }, "event queue size"},
		{"zero device capacity", func(s *Settings) { s.Devices.Capacity = 0 }, "device capacity"},
		{"zero ring", func(s *Settings) { s.Stream.RingBufferFrames = 0 }, "ring buffer frames"},
		{"negative max bytes", func(s *Settings) { s.Stream.MaxRingBufferBytes = -1 }, "maximum ring buffer bytes"},
		{"latency above ceiling", func(s *Settings) { s.Stream.DefaultLatency = 3 * time.Second }, "must not exceed the latency ceiling"},
		{"zero drain timeout", func(s *Settings) { s.Stream.DrainTimeout = 0 }, "drain timeout"},
		{"zero threshold", func(s *Settings) { s.Latency.UnderflowThreshold = 0 }, "underflow threshold"},
		{"shrinking growth", func(s *Settings) { s.Latency.GrowthNumerator = 2 }, "growth numerator"},
		{"zero denominator", func(s *Settings) { s.Latency.GrowthDenominator = 0 }, "growth denominator"},
		{"zero ceiling", func(s *Settings) { s.Latency.Ceiling = 0 }, "latency ceiling"},
		{"bad log level", func(s *Settings) { s.Logging.DefaultLevel = "verbose" }, "default log level"},
		{"bad module level", func(s *Settings) {
			s.Logging.ModuleLevels = map[string]string{"hostapi": "loud"}
		}, "module hostapi"},
		{"file output without path", func(s *Settings) {
			s.Logging.FileOutput = &logger.FileOutput{Enabled: true}
		}, "log file path"},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "telemetry DSN"},
		{"telemetry with dsn", func(s *Settings) {
			s.Telemetry.Enabled = true
			s.Telemetry.DSN = "https://key@sentry.example.com/1"
		}, ""},
		{"metrics bad listen", func(s *Settings) {
			s.Metrics.Enabled = true
			s.Metrics.Listen = "9110"
		}, "host:port"},
		{"metrics any interface", func(s *Settings) {
			s.Metrics.Enabled = true
			s.Metrics.Listen = ":9110"
		}, ""},
		{"metrics disabled ignores listen", func(s *Settings) { s.Metrics.Listen = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := validSettings()
			tt.modify(settings)
			err := ValidateSettings(settings)

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Len(t, ve.Errors, 1, "one section fails")
		})
	}
}

func TestValidateSettingsCollectsSections(t *testing.T) {
	t.Parallel()

	settings := validSettings()
	settings.Client.Name = ""
	settings.Stream.DrainTimeout = 0
	settings.Latency.Ceiling = 0

	err := ValidateSettings(settings)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}
