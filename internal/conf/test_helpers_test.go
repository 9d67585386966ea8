package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// isolate gives the test a fresh viper instance, an empty working directory
// and home, and clears the short environment bindings
func isolate(t *testing.T) string {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, b := range getEnvBindings() {
		t.Setenv(b.EnvVar, "")
		require.NoError(t, os.Unsetenv(b.EnvVar))
	}
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// validSettings returns settings equal to the defaults
func validSettings() *Settings {
	return &Settings{
		Client:  ClientSettings{Name: "pulsebridge"},
		Backend: BackendSettings{Type: BackendPulse},
		Session: SessionSettings{
			PollInterval:   100 * time.Microsecond,
			ConnectTimeout: 10 * time.Second,
			EventQueueSize: 256,
		},
		Devices: DeviceSettings{Capacity: 1024},
		Stream: StreamSettings{
			RingBufferFrames:   4096,
			MaxRingBufferBytes: 16 << 20,
			DefaultLatency:     20 * time.Millisecond,
			DrainTimeout:       5 * time.Second,
		},
		Latency: LatencySettings{
			UnderflowThreshold: 6,
			GrowthNumerator:    3,
			GrowthDenominator:  2,
			Ceiling:            2 * time.Second,
		},
		Metrics: MetricsSettings{Listen: "127.0.0.1:9110"},
	}
}
