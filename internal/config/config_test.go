package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.DigestEnabled())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram_token: from-file
database_url: /var/lib/planner/planner.db
default_timezone: Europe/Berlin
metrics_addr: ":9100"
`), 0o600))

	cfg, err := load(env(map[string]string{
		"CONFIG_FILE":    path,
		"TELEGRAM_TOKEN": " from-env ",
		"DIGEST_TIME":    "",
		"LOG_LEVEL":      "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.TelegramToken)
	assert.Equal(t, "/var/lib/planner/planner.db", cfg.DatabaseURL)
	assert.Equal(t, "Europe/Berlin", cfg.DefaultTimezone)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.False(t, cfg.DigestEnabled())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := load(env(map[string]string{
		"DEFAULT_TIMEZONE": "Mars/Olympus",
		"DIGEST_TIME":      "8am",
		"LOG_LEVEL":        "chatty",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_TIMEZONE")
	assert.Contains(t, err.Error(), "DIGEST_TIME")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(env(map[string]string{"CONFIG_FILE": filepath.Join(t.TempDir(), "absent.yaml")}))
	assert.ErrorContains(t, err, "read config file")
}
