package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnvFile(t *testing.T) Option {
	return WithEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WIDGETKIT_CONFIG", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	c, err := Load(noEnvFile(t))

	require.NoError(t, err)
	assert.Equal(t, DriverFile, c.Store.Driver)
	assert.Equal(t, 200*time.Millisecond, c.Session.Debounce)
	assert.Equal(t, "info", c.Log.Level)
	assert.False(t, c.Metrics.Enabled)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := write(t, "widgetkit.yaml", `
store:
  driver: sqlite
  dsn: widgets.db
session:
  debounce: 500ms
  debounced_keys: [summary, unit_label]
table:
  csv_dir: ./tables
log:
  format: json
`)
	t.Setenv("WIDGETKIT_LOG_LEVEL", "debug")

	c, err := Load(WithFile(path), noEnvFile(t))

	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, c.Store.Driver)
	assert.Equal(t, "widgets.db", c.Store.DSN)
	assert.Equal(t, 500*time.Millisecond, c.Session.Debounce)
	assert.Equal(t, []string{"summary", "unit_label"}, c.Session.DebouncedKeys)
	assert.Equal(t, "./tables", c.Table.CSVDir)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
}

func TestLoadEnvFile(t *testing.T) {
	env := write(t, ".env", "WIDGETKIT_STORE_DIR=/tmp/widgets-from-env\n")
	t.Cleanup(func() { os.Unsetenv("WIDGETKIT_STORE_DIR") })

	c, err := Load(WithFile(filepath.Join(t.TempDir(), "none.yaml")), WithEnvFile(env))

	require.NoError(t, err)
	assert.Equal(t, "/tmp/widgets-from-env", c.Store.Dir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver": "store:\n  driver: mongo\n",
		"sqlite no dsn":  "store:\n  driver: sqlite\n",
		"bad level":      "log:\n  level: loud\n",
		"bad format":     "log:\n  format: xml\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(WithFile(write(t, "widgetkit.yaml", content)), noEnvFile(t))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	l.Info("hidden")
	l.Warn("shown", "widget", "w-1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"widget":"w-1"`)
}
