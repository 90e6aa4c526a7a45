package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "OneBotCAI/internal/chat/loopback"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Check())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Account.UIN = 10001
	cfg.WSReverse.Enabled = true
	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  uin: 42\nhttp:\n  port: 8000\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Account.UIN)
	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, int64(3000), cfg.Heartbeat.Interval)
	assert.Equal(t, "pebble", cfg.Storage.Driver)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(path, DefaultConfig()))

	t.Setenv("ONEBOT_CAI_UIN", "777")
	t.Setenv("ONEBOT_CAI_PASSWORD", "pw")
	t.Setenv("ONEBOT_CAI_ACCESS_TOKEN", "tok")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(777), cfg.Account.UIN)
	assert.Equal(t, "pw", cfg.Account.Password)
	assert.Equal(t, "tok", cfg.AccessToken)

	t.Setenv("ONEBOT_CAI_UIN", "abc")
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	cases := map[string]func(*Config){
		"no transport": func(c *Config) { c.HTTP.Enabled = false },
		"reverse without url": func(c *Config) {
			c.WSReverse.Enabled = true
			c.WSReverse.URL = ""
		},
		"bad encoding":  func(c *Config) { c.WSReverse.Encoding = "xml" },
		"bad protocol":  func(c *Config) { c.Account.Protocol = "WINDOWS" },
		"bad driver":    func(c *Config) { c.Account.Driver = "nope" },
		"bad storage":   func(c *Config) { c.Storage.Driver = "mysql" },
		"zero interval": func(c *Config) { c.Heartbeat.Interval = 0 },
		"bad cron": func(c *Config) {
			c.Storage.Retention.Enabled = true
			c.Storage.Retention.Cron = "every day"
		},
		"zero days": func(c *Config) {
			c.Storage.Retention.Enabled = true
			c.Storage.Retention.Days = 0
		},
		"negative rate": func(c *Config) { c.SendRate = -1 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.Error(t, cfg.Check(), name)
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Millis(1500))
	assert.Equal(t, "0.0.0.0:80", Addr("0.0.0.0", 80))
}
