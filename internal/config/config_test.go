package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, int64(1048576), cfg.Relay.MaxMessageSize)
	assert.Equal(t, 256, cfg.Relay.SendBufferSize)
	assert.Equal(t, 30*time.Second, cfg.Relay.PingInterval)
	assert.Equal(t, 90*time.Second, cfg.Relay.IdleTimeout)
	assert.True(t, cfg.Relay.EvictOnDisconnect)

	assert.True(t, cfg.RateLimiter.Enabled)
	assert.Equal(t, 1000.0, cfg.RateLimiter.RequestsPerSecond)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_FromEnvironment(t *testing.T) {
	os.Setenv("SYNC_RELAY_SERVER_PORT", "9000")
	os.Setenv("SYNC_RELAY_RELAY_EVICT_ON_DISCONNECT", "false")
	defer func() {
		os.Unsetenv("SYNC_RELAY_SERVER_PORT")
		os.Unsetenv("SYNC_RELAY_RELAY_EVICT_ON_DISCONNECT")
	}()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Relay.EvictOnDisconnect)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8181
relay:
  idle_timeout: 120s
  evict_on_disconnect: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.Relay.IdleTimeout)
	assert.False(t, cfg.Relay.EvictOnDisconnect)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Relay: RelayConfig{
				MaxMessageSize: 1 << 20,
				SendBufferSize: 256,
				PingInterval:   30 * time.Second,
				IdleTimeout:    90 * time.Second,
				WriteTimeout:   10 * time.Second,
			},
			RateLimiter: RateLimiterConfig{
				Enabled:           true,
				RequestsPerSecond: 100,
				BurstSize:         10,
			},
			Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("bad server port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("idle timeout below ping interval", func(t *testing.T) {
		cfg := valid()
		cfg.Relay.IdleTimeout = 10 * time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero send buffer", func(t *testing.T) {
		cfg := valid()
		cfg.Relay.SendBufferSize = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rate limiter misconfigured", func(t *testing.T) {
		cfg := valid()
		cfg.RateLimiter.RequestsPerSecond = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad metrics port", func(t *testing.T) {
		cfg := valid()
		cfg.Metrics.Port = -1
		assert.Error(t, cfg.Validate())
	})
}
