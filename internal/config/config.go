package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// Remote backend kinds.
const (
	RemoteREST     = "rest"
	RemotePostgres = "postgres"
)

// Config represents the global ~/.roombook/config.toml.
type Config struct {
	DefaultProfile string         `toml:"default_profile"`
	Remote         RemoteConfig   `toml:"remote"`
	Realtime       RealtimeConfig `toml:"realtime"`
	Sync           SyncConfig     `toml:"sync"`
	Hours          HoursConfig    `toml:"hours"`
	HTTP           HTTPConfig     `toml:"http"`
	Checkin        CheckinConfig  `toml:"checkin"`
	Log            LogConfig      `toml:"log"`
}

// RemoteConfig selects and configures the system of record.
type RemoteConfig struct {
	Kind        string        `toml:"kind"`
	URL         string        `toml:"url"`
	APIKey      string        `toml:"api_key"`
	AccessToken string        `toml:"access_token"`
	DSN         string        `toml:"dsn"`
	Timeout     time.Duration `toml:"timeout"`
}

// RealtimeConfig points at the websocket change feed. An empty URL disables it.
type RealtimeConfig struct {
	URL string `toml:"url"`
}

type SyncConfig struct {
	ProbeInterval time.Duration `toml:"probe_interval"`
	// MaxAttempts quarantines an operation after that many transient failures; 0 retries forever.
	MaxAttempts int `toml:"max_attempts"`
}

// HoursConfig bounds suggested time slots.
type HoursConfig struct {
	Open     int    `toml:"open"`
	Close    int    `toml:"close"`
	Timezone string `toml:"timezone"`
}

// HTTPConfig configures the status and metrics listener. An empty Listen disables it.
type HTTPConfig struct {
	Listen string `toml:"listen"`
}

// CheckinConfig configures the links encoded in check-in QR codes.
type CheckinConfig struct {
	BaseURL string `toml:"base_url"`
}

// CheckinBase returns checkin.base_url, falling back to remote.url.
func (c *Config) CheckinBase() string {
	if c.Checkin.BaseURL != "" {
		return c.Checkin.BaseURL
	}
	return c.Remote.URL
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			Kind:    RemoteREST,
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			ProbeInterval: 15 * time.Second,
			MaxAttempts:   10,
		},
		Hours: HoursConfig{
			Open:     8,
			Close:    19,
			Timezone: "Local",
		},
		HTTP: HTTPConfig{Listen: "127.0.0.1:9464"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of Default.
// Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, but a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks the settings the daemon needs to start.
func (c *Config) Validate() error {
	switch c.Remote.Kind {
	case RemoteREST:
		if c.Remote.URL == "" {
			return errors.New("config: remote.url is required for the rest backend")
		}
	case RemotePostgres:
		if c.Remote.DSN == "" {
			return errors.New("config: remote.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown remote.kind %q", c.Remote.Kind)
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("config: sync.max_attempts must not be negative, got %d", c.Sync.MaxAttempts)
	}
	if c.Hours.Open < 0 || c.Hours.Close > 24 || c.Hours.Open >= c.Hours.Close {
		return fmt.Errorf("config: invalid hours %d-%d", c.Hours.Open, c.Hours.Close)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// Location resolves hours.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Hours.Timezone == "" || c.Hours.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Hours.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: hours.timezone: %w", err)
	}
	return loc, nil
}
