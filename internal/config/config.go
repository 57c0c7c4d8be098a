// Package config loads the TOML configuration file and applies defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Store   StoreConfig   `toml:"store"`
	Logging LoggingConfig `toml:"logging"`
}

type StoreConfig struct {
	DataDir string `toml:"data_dir"`
	// Buckets is the number of bucket files the key space is split
	// across. Fixed for the lifetime of a data directory.
	Buckets int `toml:"buckets"`
	// CacheBuckets caps how many buckets stay resident in memory.
	CacheBuckets int `toml:"cache_buckets"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns a Config with sane defaults: 16 buckets keeps the file
// count small, a cache of 2 keeps memory bounded while absorbing the
// common alternating access pattern.
func Defaults() *Config {
	return &Config{
		Store: StoreConfig{
			DataDir:      "data",
			Buckets:      16,
			CacheBuckets: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file over the defaults. If path is empty the
// default location is tried and silently skipped when absent.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome("~/.spora/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for values the engine would reject.
func (c *Config) Validate() error {
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must not be empty")
	}
	if c.Store.Buckets < 1 {
		return fmt.Errorf("store.buckets must be at least 1, got %d", c.Store.Buckets)
	}
	if c.Store.CacheBuckets < 1 || c.Store.CacheBuckets > c.Store.Buckets {
		return fmt.Errorf("store.cache_buckets must be in [1, %d], got %d",
			c.Store.Buckets, c.Store.CacheBuckets)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
