// Package config loads widgetkit application settings from an optional
// config file, a .env file and WIDGETKIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WIDGETKIT_STORE_DIR.
const EnvPrefix = "WIDGETKIT"

// Store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalid wraps every validation failure of a loaded config.
var ErrInvalid = errors.New("invalid config")

// Config holds application configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Session SessionConfig `mapstructure:"session"`
	Table   TableConfig   `mapstructure:"table"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig selects where widget states are persisted.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Dir    string `mapstructure:"dir"`
}

// CatalogConfig points at an optional JSONC report catalog.
type CatalogConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// SessionConfig tunes commit debouncing.
type SessionConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"`
	DebouncedKeys []string      `mapstructure:"debounced_keys"`
}

// TableConfig selects the table schema source: an HTTP API or a CSV dir.
type TableConfig struct {
	BaseURL string `mapstructure:"base_url"`
	CSVDir  string `mapstructure:"csv_dir"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig toggles prometheus counters.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ============================================================================
// LOADING
// ============================================================================

type loadOptions struct {
	file    string
	envFile string
}

// Option configures Load.
type Option func(*loadOptions)

// WithFile reads settings from path instead of searching for widgetkit.*.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.file = path }
}

// WithEnvFile loads path instead of ./.env.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// Load reads configuration. Precedence: environment, config file, defaults.
// A missing config file or .env file is not an error.
func Load(opts ...Option) (Config, error) {
	o := loadOptions{file: os.Getenv(EnvPrefix + "_CONFIG"), envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", o.envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if o.file != "" {
		v.SetConfigFile(o.file)
	} else {
		v.SetConfigName("widgetkit")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "widgetkit"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverFile)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.dir", filepath.Join(".widgetkit", "widgets"))
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch", false)
	v.SetDefault("session.debounce", "200ms")
	v.SetDefault("session.debounced_keys", []string{})
	v.SetDefault("table.base_url", "")
	v.SetDefault("table.csv_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", false)
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverFile:
		if c.Store.Dir == "" {
			return fmt.Errorf("%w: store.dir is required for the file driver", ErrInvalid)
		}
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the %s driver", ErrInvalid, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.Session.Debounce < 0 {
		return fmt.Errorf("%w: session.debounce must not be negative", ErrInvalid)
	}
	if _, err := c.Log.level(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// ============================================================================
// LOGGING
// ============================================================================

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds a text or JSON slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
