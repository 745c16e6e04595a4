package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Reader   ReaderConfig   `yaml:"reader"`
	Server   ServerConfig   `yaml:"server"`
	Watch    WatchConfig    `yaml:"watch"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type SiteConfig struct {
	URL        string `yaml:"url"`
	FeedURL    string `yaml:"feed_url"`
	ArchiveURL string `yaml:"archive_url"`
	UserAgent  string `yaml:"user_agent"`
	Timeout    string `yaml:"timeout"`  // e.g. "10s"
	Interval   string `yaml:"interval"` // minimum gap between requests
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ReaderConfig controls fetching the linked articles for full-text search.
type ReaderConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

type WatchConfig struct {
	Interval string `yaml:"interval"`
}

type NotifyConfig struct {
	Topic  string `yaml:"topic"` // bare ntfy topic or full URL
	Token  string `yaml:"token"`
	Events string `yaml:"events"` // comma-separated: issue, stale, error
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	dir, err := GetUserConfigDir()
	if err != nil {
		dir = ".droidweekly"
	}
	return &Config{
		Site: SiteConfig{
			URL:        "https://androidweekly.net",
			FeedURL:    "https://androidweekly.net/rss.xml",
			ArchiveURL: "https://androidweekly.net/archive",
			UserAgent:  "DroidWeekly",
			Timeout:    "10s",
			Interval:   "1s",
		},
		Database: DatabaseConfig{Path: filepath.Join(dir, "droidweekly.db")},
		Logging:  LoggingConfig{Level: "info"},
		Reader:   ReaderConfig{Concurrency: 4},
		Server:   ServerConfig{Addr: "127.0.0.1:8080"},
		Watch:    WatchConfig{Interval: "6h"},
		Notify:   NotifyConfig{Events: "issue,error"},
	}
}

// Load reads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables if present
	if v := os.Getenv("DW_SITE_URL"); v != "" {
		cfg.Site.URL = v
	}
	if v := os.Getenv("DW_NTFY_TOKEN"); v != "" {
		cfg.Notify.Token = v
	}
	if v := os.Getenv("DW_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Site.URL == "" {
		return fmt.Errorf("site.url is required")
	}
	if u, err := url.Parse(c.Site.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.url must be an absolute URL")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	for name, v := range map[string]string{
		"site.timeout":   c.Site.Timeout,
		"site.interval":  c.Site.Interval,
		"watch.interval": c.Watch.Interval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Reader.Concurrency < 0 {
		return fmt.Errorf("reader.concurrency must not be negative")
	}
	return nil
}

// Duration parses one of the duration fields, falling back to def when the
// value is empty. Values are checked by Validate.
func Duration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
