package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverEtcd   = "etcd"
)

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level string `mapstructure:"log_level"`
}

// EngineConfig controls how containers are stopped.
type EngineConfig struct {
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
	StopGracePeriod time.Duration `mapstructure:"stop_grace_period"`
}

type BusConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type APIConfig struct {
	ListenAddress   string        `mapstructure:"listen_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects and configures the document repository.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	EtcdEndpoints   []string      `mapstructure:"etcd_endpoints"`
	EtcdPrefix      string        `mapstructure:"etcd_prefix"`
	EtcdDialTimeout time.Duration `mapstructure:"etcd_dial_timeout"`
}

// TelemetryConfig enables OTLP metric export when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string        `mapstructure:"otlp_endpoint"`
	PushInterval time.Duration `mapstructure:"push_interval"`
	Insecure     bool          `mapstructure:"insecure"`
}

// Config is the top-level configuration struct.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Bus       BusConfig       `mapstructure:"bus"`
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// InitConfig sets defaults, reads the config file if there is one and
// enables environment overrides (log.log_level -> LOG_LOG_LEVEL). An empty
// cfgFile looks for config.yaml in the working directory.
func InitConfig(cfgFile string) error {
	viper.SetDefault("log.log_level", "INFO")
	viper.SetDefault("engine.stop_timeout", 30*time.Second)
	viper.SetDefault("engine.stop_grace_period", 10*time.Second)
	viper.SetDefault("bus.capacity", 1000)
	viper.SetDefault("api.listen_address", "127.0.0.1:8090")
	viper.SetDefault("api.shutdown_timeout", 10*time.Second)
	viper.SetDefault("store.driver", StoreDriverSQLite)
	viper.SetDefault("store.sqlite_path", "tyed.db")
	viper.SetDefault("store.etcd_endpoints", []string{"localhost:2379"})
	viper.SetDefault("store.etcd_prefix", "/tye/resources")
	viper.SetDefault("store.etcd_dial_timeout", 2*time.Second)
	viper.SetDefault("telemetry.otlp_endpoint", "")
	viper.SetDefault("telemetry.push_interval", 15*time.Second)
	viper.SetDefault("telemetry.insecure", true)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config") // Looks for config.yaml
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// Load unmarshals the configuration into the Config struct and validates it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case StoreDriverEtcd:
		if len(c.Store.EtcdEndpoints) == 0 {
			return fmt.Errorf("store.etcd_endpoints is required for the etcd driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Engine.StopTimeout <= 0 {
		return fmt.Errorf("engine.stop_timeout must be positive")
	}
	if c.Bus.Capacity <= 0 {
		return fmt.Errorf("bus.capacity must be positive")
	}
	if c.API.ListenAddress == "" {
		return fmt.Errorf("api.listen_address is required")
	}
	return nil
}
