// Package config loads Segflow's runtime configuration from config.yaml
// plus SEGFLOW_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration, unmarshalled from viper.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	APIKey      string `mapstructure:"API_KEY"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	AppEnv      string `mapstructure:"APP_ENV"`
	Redis       struct {
		Addr     string `mapstructure:"ADDR"`
		Password string `mapstructure:"PASSWORD"`
		DB       int    `mapstructure:"DB"`
	} `mapstructure:"REDIS"`
	Flow struct {
		TickInterval string `mapstructure:"TICK_INTERVAL"`
	} `mapstructure:"FLOW"`
	Sandbox struct {
		Timeout string `mapstructure:"TIMEOUT"`
	} `mapstructure:"SANDBOX"`
}

// Load reads config.yaml (if present) from the working directory, then
// applies SEGFLOW_-prefixed environment overrides, and unmarshals into a
// Config with defaults filled in.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("FLOW.TICK_INTERVAL", "@every 100ms")
	v.SetDefault("SANDBOX.TIMEOUT", "250ms")
	// Empty defaults register these keys so Unmarshal picks up their
	// SEGFLOW_-prefixed environment values.
	v.SetDefault("API_KEY", "")
	v.SetDefault("REDIS.PASSWORD", "")

	v.SetEnvPrefix("SEGFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// DATABASE_URL is read unprefixed, unlike every other setting.
	if err := v.BindEnv("DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("config: bind DATABASE_URL: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config.yaml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("config: SEGFLOW_API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	return &cfg, nil
}

// ParsedSandboxTimeout parses Sandbox.Timeout into a time.Duration.
func (c *Config) ParsedSandboxTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Sandbox.Timeout)
}
