// Package config loads recordsync runtime settings from YAML, JSON or TOML
// files. Values missing from the file keep their defaults; CLI flags
// override both.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultCollection is the collection watched when none is configured.
const DefaultCollection = "shoppingCartItems"

// Config holds runtime parameters for the watcher and CLI.
type Config struct {
	Database         string `json:"database" yaml:"database" toml:"database"`
	Collection       string `json:"collection" yaml:"collection" toml:"collection"`
	RulesDir         string `json:"rules_dir" yaml:"rules_dir" toml:"rules_dir"`
	MetricsAddr      string `json:"metrics_addr" yaml:"metrics_addr" toml:"metrics_addr"`
	LogLevel         string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat        string `json:"log_format" yaml:"log_format" toml:"log_format"`
	WriteTimeout     string `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`
	PollInterval     string `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	OverwritesAsAdds bool   `json:"overwrites_as_adds" yaml:"overwrites_as_adds" toml:"overwrites_as_adds"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database:     "recordsync.db",
		Collection:   DefaultCollection,
		LogLevel:     "info",
		LogFormat:    "text",
		WriteTimeout: "10s",
		PollInterval: "250ms",
	}
}

// Load reads a configuration file based on its extension, on top of Default.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated and parsed fields.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if _, err := c.WriteTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.PollIntervalDuration(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// WriteTimeoutDuration parses WriteTimeout.
func (c Config) WriteTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.WriteTimeout)
	if err != nil {
		return 0, fmt.Errorf("write_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("write_timeout must be positive, got %s", d)
	}
	return d, nil
}

// PollIntervalDuration parses PollInterval. Zero disables polling for
// writes from other processes.
func (c Config) PollIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("poll_interval: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("poll_interval must not be negative, got %s", d)
	}
	return d, nil
}
