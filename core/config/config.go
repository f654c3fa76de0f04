// Package config loads the weft configuration from YAML, with
// defaults suitable for running against a local sqlite store.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Eviction EvictionConfig `yaml:"eviction"`
	Watcher  WatcherConfig  `yaml:"watcher"`
}

type StoreConfig struct {
	// Driver selects the backend: "memory" or "sqlite".
	Driver string `yaml:"driver"`

	// Path is the sqlite database file.
	Path string `yaml:"path"`

	// CacheSize bounds the latest-version cache.
	CacheSize int `yaml:"cache_size"`
}

type EvictionConfig struct {
	RecentToolcalls      int `yaml:"recent_toolcalls"`
	RecentCompletedTurns int `yaml:"recent_completed_turns"`
}

type WatcherConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Paths           []string `yaml:"paths"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	Debounce        string   `yaml:"debounce"`
}

// DebounceInterval parses the debounce setting, falling back to 100ms.
func (w WatcherConfig) DebounceInterval() time.Duration {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:    "memory",
			Path:      "weft/objects.db",
			CacheSize: 256,
		},
		Eviction: EvictionConfig{
			RecentToolcalls:      5,
			RecentCompletedTurns: 3,
		},
		Watcher: WatcherConfig{
			Enabled:         false,
			ExcludePatterns: []string{"**/.git/**", "**/*.swp", "**/*~"},
			Debounce:        "100ms",
		},
	}
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Eviction.RecentToolcalls < 0 || c.Eviction.RecentCompletedTurns < 0 {
		return fmt.Errorf("eviction windows must be non-negative")
	}
	return nil
}
