// Package config provides configuration management for the sync relay.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the relay.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Relay       RelayConfig       `mapstructure:"relay"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RelayConfig holds socket relay configuration.
type RelayConfig struct {
	// MaxMessageSize bounds inbound socket frames, in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	// SendBufferSize is the per-connection outbound queue length.
	SendBufferSize int `mapstructure:"send_buffer_size"`
	// PingInterval is how often the relay pings idle connections.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// IdleTimeout evicts connections that produce no traffic and answer no
	// pings within the window. Client heartbeats alone cannot detect a dead
	// peer, so the relay enforces this itself.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// WriteTimeout bounds individual socket writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// EvictOnDisconnect drops a restaurant's synced data when its last
	// device disconnects. This loses data for briefly-offline restaurants;
	// it is on by default to match the historical behavior.
	EvictOnDisconnect bool `mapstructure:"evict_on_disconnect"`
}

// RateLimiterConfig holds rate limiter configuration for the REST surface.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sync-relay/")
	}

	v.SetEnvPrefix("SYNC_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("relay.max_message_size", 1048576)
	v.SetDefault("relay.send_buffer_size", 256)
	v.SetDefault("relay.ping_interval", "30s")
	v.SetDefault("relay.idle_timeout", "90s")
	v.SetDefault("relay.write_timeout", "10s")
	v.SetDefault("relay.evict_on_disconnect", true)

	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 1000.0)
	v.SetDefault("rate_limiter.burst_size", 100)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Relay.MaxMessageSize <= 0 {
		return fmt.Errorf("relay max message size must be positive")
	}
	if c.Relay.SendBufferSize <= 0 {
		return fmt.Errorf("relay send buffer size must be positive")
	}
	if c.Relay.PingInterval <= 0 {
		return fmt.Errorf("relay ping interval must be positive")
	}
	if c.Relay.IdleTimeout <= c.Relay.PingInterval {
		return fmt.Errorf("relay idle timeout must exceed the ping interval")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	return nil
}
