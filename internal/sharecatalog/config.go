package sharecatalog

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the share catalog's own configuration, in the shape of
// internal/config.Config: a single mapstructure-tagged struct populated by
// Load, not threaded through by hand.
type Config struct {
	DataDir       string `mapstructure:"data_dir"`
	LogLevel      string `mapstructure:"log_level"`
	MaxRetryTimes int    `mapstructure:"max_retry_times"`
	Metrics       MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig mirrors internal/config.MetricsConfig's shape, scoped down
// to what the share catalog's Metrics type exposes.
type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// LoadConfig builds configuration from defaults, a config file (if
// configFile is non-empty) and environment variables prefixed SHARECATALOG_.
// Environment variables override config file values, which override
// defaults — the same precedence chain as internal/config.Load, minus the
// cobra flag-binding step since this package has no CLI surface of its own.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setConfigDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SHARECATALOG")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setConfigDefaults(v *viper.Viper) {
	// Registering data_dir makes Unmarshal consult SHARECATALOG_DATA_DIR;
	// AutomaticEnv alone only applies to keys viper already knows.
	v.SetDefault("data_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_retry_times", DefaultMaxRetryTimes)
	v.SetDefault("metrics.enable", true)
}

func validateConfig(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via config file or SHARECATALOG_DATA_DIR environment variable")
	}
	if cfg.MaxRetryTimes <= 0 {
		return fmt.Errorf("max_retry_times must be positive, got %d", cfg.MaxRetryTimes)
	}
	return nil
}
