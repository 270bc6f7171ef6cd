package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dpshade/pocket-docs/internal/export"
)

const (
	// EnvDir overrides the base directory
	EnvDir = "POCKET_DOCS_DIR"
	// EnvAPIURL overrides api.base_url
	EnvAPIURL = "POCKET_DOCS_API_URL"
	// EnvAPIToken overrides api.token
	EnvAPIToken = "POCKET_DOCS_API_TOKEN"

	fileName = "config.toml"
)

// APIConfig configures the CRM API client
type APIConfig struct {
	BaseURL           string  `toml:"base_url"`
	Token             string  `toml:"token,omitempty"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxRetries        int     `toml:"max_retries"`
}

// Timeout returns the per-request timeout
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ExportConfig configures PDF export
type ExportConfig struct {
	Dir         string  `toml:"dir"`
	Sanitize    bool    `toml:"sanitize"`
	ChromeBin   string  `toml:"chrome_bin,omitempty"`
	Paper       string  `toml:"paper"`
	Orientation string  `toml:"orientation"`
	MarginIn    float64 `toml:"margin_in"`
}

// CatalogConfig points at an optional YAML file of extra catalog fields
type CatalogConfig struct {
	File string `toml:"file,omitempty"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

// ServerConfig configures the local HTTP API
type ServerConfig struct {
	Port int `toml:"port"`
}

// Config is the contents of config.toml
type Config struct {
	API     APIConfig     `toml:"api"`
	Export  ExportConfig  `toml:"export"`
	Catalog CatalogConfig `toml:"catalog"`
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`

	dir string
}

// Default returns the configuration used when no file exists
func Default(dir string) *Config {
	layout := export.DefaultLayout()
	return &Config{
		API: APIConfig{
			BaseURL:           "http://localhost:8000/api/v1",
			TimeoutSeconds:    30,
			RequestsPerSecond: 5,
			Burst:             10,
			MaxRetries:        2,
		},
		Export: ExportConfig{
			Dir:         filepath.Join(dir, "exports"),
			Paper:       layout.Paper.Name,
			Orientation: "portrait",
			MarginIn:    layout.MarginIn,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "logs", "pocket-docs.log"),
		},
		Server: ServerConfig{Port: 8080},
		dir:    dir,
	}
}

// EffectiveDir returns the base directory and where it came from
// ("environment" or "default").
func EffectiveDir() (string, string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, "environment", nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".pocket-docs"), "default", nil
}

// Load reads <dir>/config.toml on top of the defaults and applies the
// environment overrides. A missing file is not an error. An empty dir
// resolves through EffectiveDir.
func Load(dir string) (*Config, error) {
	if dir == "" {
		var err error
		if dir, _, err = EffectiveDir(); err != nil {
			return nil, err
		}
	}

	cfg := Default(dir)

	data, err := os.ReadFile(cfg.Path())
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", cfg.Path(), err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.API.Token = v
	}
}

// Validate checks values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := c.Layout(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// Layout builds the export page layout from the export section
func (c *Config) Layout() (export.PageLayout, error) {
	return export.NewLayout(c.Export.Paper, c.Export.Orientation, c.Export.MarginIn)
}

// Dir returns the base directory
func (c *Config) Dir() string {
	return c.dir
}

// Path returns the location of config.toml
func (c *Config) Path() string {
	return filepath.Join(c.dir, fileName)
}

// Save writes the configuration to config.toml. The token is stored as is,
// so the file is written with restricted permissions.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(c.Path(), data, 0600)
}
