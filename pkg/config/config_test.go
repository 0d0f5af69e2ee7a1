package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	ApplyDefaults(c)

	assert.Equal(t, "./relayq-data", c.Storage.DBPath)
	assert.Equal(t, 8777, c.Server.Port)
	assert.Equal(t, 5, c.Retry.MaxAttempts)
	assert.Equal(t, 1000, c.Retry.BaseDelayMs)
	assert.Equal(t, 30000, c.Retry.MaxDelayMs)
	assert.Equal(t, 1000, c.Retry.JitterMs)
	assert.Equal(t, 5.0, c.Drain.RPS)
	assert.Equal(t, 10, c.Drain.Burst)
	assert.Equal(t, "*/5 * * * *", c.Sweep.Cron)
	assert.Equal(t, "168h", c.Sweep.DeadRetention)
	require.NoError(t, Validate(c))
}

func TestAddrForms(t *testing.T) {
	var c Config
	c.Server.Address = "127.0.0.1"
	c.Server.Port = 9000
	assert.Equal(t, "127.0.0.1:9000", c.Addr())

	// an address already carrying a port wins over Port
	c.Server.Address = "0.0.0.0:8080"
	assert.Equal(t, "0.0.0.0:8080", c.Addr())

	c.Server.Address = ""
	c.Server.Port = 0
	assert.Equal(t, ":8777", c.Addr())
}

func TestDeadRetention(t *testing.T) {
	var c Config
	c.Sweep.DeadRetention = "24h"
	assert.Equal(t, 24*time.Hour, c.DeadRetention())

	c.Sweep.DeadRetention = "garbage"
	assert.Equal(t, 7*24*time.Hour, c.DeadRetention())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayq.yaml")
	data := []byte(`
server:
  address: "127.0.0.1"
  port: 9100
storage:
  db_path: "/tmp/relayq-test"
  max_bytes: 1048576
retry:
  max_attempts: 3
  base_delay_ms: 500
sweep:
  enabled: true
  cron: "*/10 * * * *"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, c.Server.Port)
	assert.Equal(t, "/tmp/relayq-test", c.Storage.DBPath)
	assert.Equal(t, uint64(1048576), c.Storage.MaxBytes)
	assert.Equal(t, 3, c.Retry.MaxAttempts)
	assert.Equal(t, 500, c.Retry.BaseDelayMs)
	assert.True(t, c.Sweep.Enabled)
	assert.Equal(t, "*/10 * * * *", c.Sweep.Cron)
}

func TestLoadEffectiveEnvOverrides(t *testing.T) {
	t.Setenv("RELAYQ_ADDR", "10.0.0.1")
	t.Setenv("RELAYQ_PORT", "9999")
	t.Setenv("RELAYQ_DB_PATH", "/tmp/env-db")
	t.Setenv("RELAYQ_LOG_LEVEL", "debug")

	c, envUsed, err := LoadEffective(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.True(t, envUsed)
	assert.Equal(t, "10.0.0.1", c.Server.Address)
	assert.Equal(t, 9999, c.Server.Port)
	assert.Equal(t, "/tmp/env-db", c.Storage.DBPath)
	assert.Equal(t, "debug", c.Logging.Level)
	// defaults still fill everything env left unset
	assert.Equal(t, 5, c.Retry.MaxAttempts)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	mk := func(mutate func(*Config)) *Config {
		c := &Config{}
		ApplyDefaults(c)
		mutate(c)
		return c
	}

	cases := []struct {
		name string
		cfg  *Config
	}{
		{"negative attempts", mk(func(c *Config) { c.Retry.MaxAttempts = -1 })},
		{"negative base delay", mk(func(c *Config) { c.Retry.BaseDelayMs = -5 })},
		{"cap below base", mk(func(c *Config) { c.Retry.MaxDelayMs = 10; c.Retry.BaseDelayMs = 100 })},
		{"negative rps", mk(func(c *Config) { c.Drain.RPS = -1 })},
		{"negative burst", mk(func(c *Config) { c.Drain.Burst = -2 })},
		{"bad retention", mk(func(c *Config) { c.Sweep.DeadRetention = "not-a-duration" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, Validate(tc.cfg))
		})
	}
}
