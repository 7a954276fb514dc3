// Package config loads the migration runner's own settings (platform
// credentials, the SQLite config store path, which named TransferConfig to
// run, and the resilience tuning) via github.com/spf13/viper: a YAML file
// with environment-variable overrides and defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PlatformConfig holds one environment's OData Web API endpoint and OAuth2
// client-credentials.
type PlatformConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Scope        string `mapstructure:"scope"`
}

// ResilienceConfig mirrors internal/resilience's three policies, expressed
// in plain config-file terms (durations as primitive numbers, converted via
// the accessor methods below).
type ResilienceConfig struct {
	MaxAttempts           int     `mapstructure:"max_attempts"`
	BaseDelayMs           int     `mapstructure:"base_delay_ms"`
	MaxDelaySeconds       int     `mapstructure:"max_delay_seconds"`
	BackoffMultiplier     float64 `mapstructure:"backoff_multiplier"`
	Jitter                bool    `mapstructure:"jitter"`
	RequestsPerMinute     int     `mapstructure:"requests_per_minute"`
	BurstCapacity         int     `mapstructure:"burst_capacity"`
	RateLimitEnabled      bool    `mapstructure:"rate_limit_enabled"`
	MaxConcurrentRequests int     `mapstructure:"max_concurrent_requests"`
	MaxQueueItems         int     `mapstructure:"max_queue_items"`
}

func (r ResilienceConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

func (r ResilienceConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySeconds) * time.Second
}

// Config is the top-level runner configuration.
type Config struct {
	ConfigStorePath string           `mapstructure:"config_store_path"`
	TransferName    string           `mapstructure:"transfer_name"`
	BatchSize       int              `mapstructure:"batch_size"`
	Source          PlatformConfig   `mapstructure:"source"`
	Target          PlatformConfig   `mapstructure:"target"`
	Resilience      ResilienceConfig `mapstructure:"resilience"`
}

// Load reads "migrate.yaml" from the working directory (or two levels up),
// applying defaults for anything the file and environment don't set. A
// missing config file is not an error: callers can run entirely off
// MIGRATE_* environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("migrate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("config_store_path", "./migrate.db")
	viper.SetDefault("batch_size", 50)
	viper.SetDefault("resilience.max_attempts", 5)
	viper.SetDefault("resilience.base_delay_ms", 500)
	viper.SetDefault("resilience.max_delay_seconds", 30)
	viper.SetDefault("resilience.backoff_multiplier", 2.0)
	viper.SetDefault("resilience.jitter", true)
	viper.SetDefault("resilience.requests_per_minute", 300)
	viper.SetDefault("resilience.burst_capacity", 20)
	viper.SetDefault("resilience.rate_limit_enabled", true)
	viper.SetDefault("resilience.max_concurrent_requests", 8)
	viper.SetDefault("resilience.max_queue_items", 4)

	viper.SetEnvPrefix("MIGRATE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
