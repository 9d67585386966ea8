// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("client.name", defaultClientName())

	viper.SetDefault("backend.type", BackendPulse)
	viper.SetDefault("backend.server", "")

	viper.SetDefault("session.pollinterval", 100*time.Microsecond)
	viper.SetDefault("session.connecttimeout", 10*time.Second)
	viper.SetDefault("session.eventqueuesize", 256)

	viper.SetDefault("devices.capacity", 1024)

	viper.SetDefault("stream.ringbufferframes", 4096)
	viper.SetDefault("stream.maxringbufferbytes", 16<<20)
	viper.SetDefault("stream.defaultlatency", 20*time.Millisecond)
	viper.SetDefault("stream.draintimeout", 5*time.Second)

	// empirical values, keep unless measurements say otherwise
	viper.SetDefault("latency.underflowthreshold", 6)
	viper.SetDefault("latency.growthnumerator", 3)
	viper.SetDefault("latency.growthdenominator", 2)
	viper.SetDefault("latency.ceiling", 2*time.Second)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/pulsebridge.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
	viper.SetDefault("telemetry.environment", "production")

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "127.0.0.1:9110")
}
