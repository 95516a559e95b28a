package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session backend identifiers.
const (
	SessionBackendSQLite  = "sqlite"
	SessionBackendKeyring = "keyring"
)

// DatabaseConfig locates the SQLite database holding forms and sessions.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PollConfig tunes the reconciliation scheduler.
type PollConfig struct {
	// IntervalSec is the time between two polling ticks.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// Concurrency bounds the number of forms reconciled in parallel.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// FetchTimeoutSec bounds a single provider fetch.
	FetchTimeoutSec int `mapstructure:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
}

// Interval returns the tick period as a duration.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// FetchTimeout returns the per-fetch bound as a duration.
func (c PollConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// GoogleConfig holds Gmail API settings.
type GoogleConfig struct {
	// Endpoint overrides the Gmail API base URL. Empty uses the default.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// MicrosoftConfig holds Microsoft Graph settings.
type MicrosoftConfig struct {
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size"`
}

// ProvidersConfig groups the mail provider settings.
type ProvidersConfig struct {
	// SubjectToken is the fixed marker every outbound request carries in
	// its subject line.
	SubjectToken string          `mapstructure:"subject_token" yaml:"subject_token"`
	Google       GoogleConfig    `mapstructure:"google" yaml:"google"`
	Microsoft    MicrosoftConfig `mapstructure:"microsoft" yaml:"microsoft"`
}

// SessionsConfig selects where mailbox sessions are read from.
type SessionsConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	KeyringDir string `mapstructure:"keyring_dir" yaml:"keyring_dir"`
}

// ServerConfig controls the ops HTTP endpoint.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Poll      PollConfig      `mapstructure:"poll" yaml:"poll"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Sessions  SessionsConfig  `mapstructure:"sessions" yaml:"sessions"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/formpoll/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "formpoll", "config.yaml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "formpoll")
}

// setDefaults registers every key so that environment overrides and
// Unmarshal see a complete tree even without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(defaultDataDir(), "formpoll.db"))
	v.SetDefault("poll.interval_sec", 60)
	v.SetDefault("poll.concurrency", 4)
	v.SetDefault("poll.fetch_timeout_sec", 30)
	v.SetDefault("providers.subject_token", "Information Request")
	v.SetDefault("providers.google.endpoint", "")
	v.SetDefault("providers.microsoft.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("providers.microsoft.page_size", 10)
	v.SetDefault("sessions.backend", SessionBackendSQLite)
	v.SetDefault("sessions.keyring_dir", filepath.Join(defaultDataDir(), "keyring"))
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", "127.0.0.1:8085")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error: defaults and FORMPOLL_* environment
// variables still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FORMPOLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges that Viper cannot express.
func (c *AppConfig) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Poll.IntervalSec < 1 {
		return fmt.Errorf("poll.interval_sec must be positive, got %d", c.Poll.IntervalSec)
	}
	if c.Poll.Concurrency < 1 {
		return fmt.Errorf("poll.concurrency must be positive, got %d", c.Poll.Concurrency)
	}
	if c.Poll.FetchTimeoutSec < 1 {
		return fmt.Errorf("poll.fetch_timeout_sec must be positive, got %d", c.Poll.FetchTimeoutSec)
	}
	if strings.TrimSpace(c.Providers.SubjectToken) == "" {
		return errors.New("providers.subject_token must not be empty")
	}
	if c.Providers.Microsoft.PageSize < 1 || c.Providers.Microsoft.PageSize > 10 {
		return fmt.Errorf("providers.microsoft.page_size must be between 1 and 10, got %d",
			c.Providers.Microsoft.PageSize)
	}
	switch c.Sessions.Backend {
	case SessionBackendSQLite, SessionBackendKeyring:
	default:
		return fmt.Errorf("sessions.backend must be %q or %q, got %q",
			SessionBackendSQLite, SessionBackendKeyring, c.Sessions.Backend)
	}
	return nil
}
