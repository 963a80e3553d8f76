// Package config loads notepad's configuration.
//
// Configuration is layered, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment (NOTEPAD_*) │  ← Highest priority
//	├─────────────────────────────┤
//	│  2. Config file (TOML/YAML) │
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// A config file looks like:
//
//	[history]
//	tabMaxEntries = 50
//	quietPeriod = "500ms"
//
//	[editor]
//	theme = "dark"
//	fontSize = "md"
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/notepad/internal/config/loader"
	"github.com/dshills/notepad/internal/editor"
	"github.com/dshills/notepad/internal/history"
	"github.com/dshills/notepad/internal/logging"
	"github.com/dshills/notepad/internal/store"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "NOTEPAD_"

// Config is the complete, validated configuration.
type Config struct {
	Logging LoggingConfig   `json:"logging"`
	Server  ServerConfig    `json:"server"`
	Store   StoreConfig     `json:"store"`
	History HistoryConfig   `json:"history"`
	Editor  editor.Settings `json:"editor"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `json:"level"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string   `json:"addr"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
	// AllowedOrigins lists extra page origins that may open the WebSocket.
	AllowedOrigins []string `json:"allowedOrigins"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	// PersistDelay batches live-value writes.
	PersistDelay Duration `json:"persistDelay"`
}

// HistoryConfig configures undo history.
type HistoryConfig struct {
	// TabMaxEntries is the checkpoint capacity of each open document.
	TabMaxEntries int      `json:"tabMaxEntries"`
	QuietPeriod   Duration `json:"quietPeriod"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8420",
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Store: StoreConfig{
			Driver:       store.DriverSQLite,
			DSN:          "notepad.db",
			PersistDelay: Duration{250 * time.Millisecond},
		},
		History: HistoryConfig{
			TabMaxEntries: history.TabMaxEntries,
			QuietPeriod:   Duration{history.DefaultQuietPeriod},
		},
		Editor: editor.DefaultSettings(),
	}
}

// Option configures Load.
type Option func(*options)

type options struct {
	fs  loader.FileSystem
	env *loader.EnvLoader
}

// WithFileSystem reads the config file from fsys.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithEnvLoader replaces the environment source.
func WithEnvLoader(l *loader.EnvLoader) Option {
	return func(o *options) {
		o.env = l
	}
}

// Load builds the configuration from defaults, the file at path (optional;
// empty or missing means none) and the environment, then validates it.
func Load(path string, opts ...Option) (*Config, error) {
	o := options{
		fs:  loader.OSFS{},
		env: loader.NewEnvLoader(EnvPrefix),
	}
	for _, opt := range opts {
		opt(&o)
	}

	merged, err := Default().toMap()
	if err != nil {
		return nil, err
	}

	if path != "" {
		fileCfg, err := loader.NewFileLoaderWithFS(o.fs, path).Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, fileCfg)
	}

	if o.env != nil {
		envCfg, err := o.env.LoadLike(merged)
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		merged = loader.DeepMerge(merged, envCfg)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return &ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	if c.Server.Addr == "" {
		return &ValidationError{Field: "server.addr", Message: "must not be empty"}
	}
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return &ValidationError{Field: "store.driver", Message: fmt.Sprintf("unknown driver %q", c.Store.Driver)}
	}
	if c.Store.DSN == "" {
		return &ValidationError{Field: "store.dsn", Message: "must not be empty"}
	}
	if c.Store.PersistDelay.Duration < 0 {
		return &ValidationError{Field: "store.persistDelay", Message: "must not be negative"}
	}
	if c.History.TabMaxEntries < history.MinMaxEntries {
		return &ValidationError{Field: "history.tabMaxEntries", Message: fmt.Sprintf("must be at least %d", history.MinMaxEntries)}
	}
	if c.History.QuietPeriod.Duration < 0 {
		return &ValidationError{Field: "history.quietPeriod", Message: "must not be negative"}
	}
	if err := c.Editor.Validate(); err != nil {
		return &ValidationError{Field: "editor", Message: err.Error(), Err: err}
	}
	return nil
}

func (c *Config) toMap() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return nil, &ValidationError{Field: te.Field, Message: fmt.Sprintf("expected %s, got %s", te.Type, te.Value), Err: err}
		}
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Duration accepts "500ms"-style strings or a number of milliseconds,
// bare or quoted.
type Duration struct {
	time.Duration
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a string duration or a millisecond count.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if ms, err := strconv.ParseFloat(str, 64); err == nil {
			d.Duration = time.Duration(ms * float64(time.Millisecond))
			return nil
		}
		parsed, err := time.ParseDuration(str)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", str, err)
		}
		d.Duration = parsed
		return nil
	}

	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", s)
	}
	d.Duration = time.Duration(ms * float64(time.Millisecond))
	return nil
}

// ValidationError reports an invalid setting.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
