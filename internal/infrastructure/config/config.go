// Package config loads the workspace configuration from .sitepulse/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/messaging"
	domainPlugin "github.com/felixgeelhaar/sitepulse/pkg/domain/plugin"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Feed source kinds.
const (
	SourceAPI    = "api"
	SourceFile   = "file"
	SourcePlugin = "plugin"
)

// Environment overrides.
const (
	EnvAPIURL   = "SITEPULSE_API_URL"
	EnvAPIToken = "SITEPULSE_API_TOKEN"
	EnvLogLevel = "SITEPULSE_LOG_LEVEL"
	// EnvInboundSecret is the default variable holding the shared secret for
	// inbound feed-change notifications.
	EnvInboundSecret = "SITEPULSE_INBOUND_SECRET"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAPITimeout        = 15 * time.Second
	DefaultAPIAttempts       = 3
	DefaultAPIInitialDelay   = 200 * time.Millisecond
	DefaultConcurrency       = 4
	DefaultRetention         = 90 * 24 * time.Hour
	DefaultServerAddr        = "127.0.0.1:8080"
	DefaultRefreshInterval   = 15 * time.Minute
	DefaultBroadcastInterval = 10 * time.Second
)

// Config is the workspace configuration.
type Config struct {
	// Source selects where feeds come from: api | file | plugin.
	Source    string                    `yaml:"source"`
	API       APIConfig                 `yaml:"api"`
	File      FileConfig                `yaml:"file"`
	Plugin    domainPlugin.PluginConfig `yaml:"plugin"`
	Portfolio PortfolioConfig           `yaml:"portfolio"`
	History   HistoryConfig             `yaml:"history"`
	Server    ServerConfig              `yaml:"server"`
	Webhooks  []events.WebhookEndpoint  `yaml:"webhooks,omitempty"`
	Messaging messaging.MessagingConfig `yaml:"messaging,omitempty"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// APIConfig configures the project management REST API.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv     string        `yaml:"token_env"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// Token returns the bearer token resolved from the environment.
func (a APIConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// FileConfig points at a directory of <jobID>.json bundles.
type FileConfig struct {
	Dir string `yaml:"dir"`
}

// PortfolioConfig controls portfolio-wide assessments.
type PortfolioConfig struct {
	Concurrency int `yaml:"concurrency"`
	// Statuses limits assessments to jobs in these states. Empty means all.
	Statuses []string `yaml:"statuses,omitempty"`
}

// HistoryConfig configures the snapshot database.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	File      string        `yaml:"file"`
	Retention time.Duration `yaml:"retention"`
}

// ServerConfig configures `sitepulse serve`.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	// InboundSecretEnv names the variable holding the HMAC secret for
	// POST /hooks/feeds. An unset variable accepts unsigned notifications.
	InboundSecretEnv string `yaml:"inbound_secret_env,omitempty"`
}

// InboundSecret returns the inbound webhook secret from the environment.
func (s ServerConfig) InboundSecret() string {
	if s.InboundSecretEnv == "" {
		return ""
	}
	return os.Getenv(s.InboundSecretEnv)
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File, when set, receives JSON logs in addition to stderr.
	File string `yaml:"file,omitempty"`
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Source: SourceAPI,
		API: APIConfig{
			TokenEnv:     EnvAPIToken,
			Timeout:      DefaultAPITimeout,
			MaxAttempts:  DefaultAPIAttempts,
			InitialDelay: DefaultAPIInitialDelay,
		},
		Portfolio: PortfolioConfig{
			Concurrency: DefaultConcurrency,
			Statuses:    []string{"active"},
		},
		History: HistoryConfig{
			Enabled:   true,
			File:      storage.HistoryFile,
			Retention: DefaultRetention,
		},
		Server: ServerConfig{
			Addr:              DefaultServerAddr,
			RefreshInterval:   DefaultRefreshInterval,
			BroadcastInterval: DefaultBroadcastInterval,
			InboundSecretEnv:  EnvInboundSecret,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the workspace config, applies environment overrides and
// validates the result. A workspace without a config file yields defaults.
func Load(repo *storage.FilesystemRepository) (*Config, error) {
	cfg := Default()
	if err := repo.LoadYAML(storage.ConfigFile, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return finish(cfg)
}

// LoadFile reads a config file at an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the workspace config chosen by the caller
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to the workspace.
func Save(repo *storage.FilesystemRepository, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	return repo.SaveYAML(storage.ConfigFile, cfg)
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks required fields and structural constraints. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Source {
	case SourceAPI:
		if c.API.BaseURL == "" {
			errs = append(errs, fmt.Errorf("api.base_url is required (or set %s)", EnvAPIURL))
		} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("api.base_url must be an http(s) URL: %q", c.API.BaseURL))
		}
	case SourceFile:
		if c.File.Dir == "" {
			errs = append(errs, errors.New("file.dir is required when source is file"))
		}
	case SourcePlugin:
		if err := c.Plugin.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("plugin: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q (want api, file or plugin)", c.Source))
	}

	if c.API.Timeout < 0 || c.API.MaxAttempts < 0 || c.API.InitialDelay < 0 {
		errs = append(errs, errors.New("api timeout, max_attempts and initial_delay must not be negative"))
	}
	if c.Portfolio.Concurrency <= 0 {
		errs = append(errs, errors.New("portfolio.concurrency must be positive"))
	}
	if c.History.Enabled && c.History.File == "" {
		errs = append(errs, errors.New("history.file is required when history is enabled"))
	}
	if c.History.Retention < 0 {
		errs = append(errs, errors.New("history.retention must not be negative"))
	}
	if c.Server.RefreshInterval <= 0 {
		errs = append(errs, errors.New("server.refresh_interval must be positive"))
	}
	if c.Server.BroadcastInterval <= 0 {
		errs = append(errs, errors.New("server.broadcast_interval must be positive"))
	}
	if _, ok := parseLevel(c.Logging.Level); !ok {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	for i, w := range c.Webhooks {
		if w.Name == "" {
			errs = append(errs, fmt.Errorf("webhooks[%d]: name is required", i))
		}
		if u, err := url.Parse(w.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("webhooks[%d] %q: url must be http(s)", i, w.Name))
		}
	}
	for i, a := range c.Messaging.Adapters {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("messaging.adapters[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.Logging.Level)
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO", "":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
