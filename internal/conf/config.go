// config.go: settings struct and loading for pulsebridge
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
)

// Backend types accepted by backend.type
const (
	BackendPulse     = "pulse"
	BackendMiniaudio = "miniaudio"
	BackendFake      = "fake"
)

// ClientSettings identify the application to the audio server
type ClientSettings struct {
	Name string `yaml:"name"` // client name shown by the server, defaults to the executable name
}

// BackendSettings select the audio server client implementation
type BackendSettings struct {
	Type   string `yaml:"type"`   // pulse, miniaudio or fake
	Server string `yaml:"server"` // server address, empty for the default server
}

// SessionSettings tune the connection manager
type SessionSettings struct {
	PollInterval   time.Duration `yaml:"pollinterval"`   // wait granularity while connecting
	ConnectTimeout time.Duration `yaml:"connecttimeout"` // give up connecting after this long
	EventQueueSize int           `yaml:"eventqueuesize"` // buffered events before backends block
}

// DeviceSettings bound the device table
type DeviceSettings struct {
	Capacity int `yaml:"capacity"`
}

// StreamSettings size blocking mode buffers and timeouts
type StreamSettings struct {
	RingBufferFrames   int           `yaml:"ringbufferframes"`
	MaxRingBufferBytes int           `yaml:"maxringbufferbytes"`
	DefaultLatency     time.Duration `yaml:"defaultlatency"` // used when a stream suggests none
	DrainTimeout       time.Duration `yaml:"draintimeout"`   // how long Stop waits for output to play
}

// LatencySettings control underflow driven latency growth
type LatencySettings struct {
	UnderflowThreshold int           `yaml:"underflowthreshold"`
	GrowthNumerator    int           `yaml:"growthnumerator"`
	GrowthDenominator  int           `yaml:"growthdenominator"`
	Ceiling            time.Duration `yaml:"ceiling"`
}

// TelemetrySettings configure Sentry error reporting
type TelemetrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// MetricsSettings configure the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port
}

// Settings holds the complete configuration
type Settings struct {
	Debug bool `yaml:"debug"`

	Client    ClientSettings       `yaml:"client"`
	Backend   BackendSettings      `yaml:"backend"`
	Session   SessionSettings      `yaml:"session"`
	Devices   DeviceSettings       `yaml:"devices"`
	Stream    StreamSettings       `yaml:"stream"`
	Latency   LatencySettings      `yaml:"latency"`
	Logging   logger.LoggingConfig `yaml:"logging"`
	Telemetry TelemetrySettings    `yaml:"telemetry"`
	Metrics   MetricsSettings      `yaml:"metrics"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the configuration file and environment variables into
// a validated Settings. configFile overrides the search paths when set. A
// missing config.yaml in the search paths is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults, environment bindings and reads the config file
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// invalid environment values are reported, validation catches what matters
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryFileIO).
				Context("operation", "read-config").
				Context("path", configFile).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// GetSettings returns the settings of the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ConfigFileUsed returns the path viper read settings from, empty when only
// defaults and environment were used
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// YAML returns the settings as a YAML document
func (s *Settings) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath atomically
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := settings.YAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempName, configPath); err != nil {
		return fmt.Errorf("error renaming temporary file: %w", err)
	}
	return nil
}

// defaultClientName is the base name of the running executable
func defaultClientName() string {
	if len(os.Args) > 0 {
		if name := filepath.Base(os.Args[0]); name != "" && name != "." && name != string(filepath.Separator) {
			return name
		}
	}
	return "pulsebridge"
}
