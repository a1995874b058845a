// Package config loads the radlibs YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Watcher WatcherConfig `yaml:"watcher"`
	Options OptionsConfig `yaml:"options"`
	Action  ActionConfig  `yaml:"action"`
}

// StoreConfig locates the settings database.
type StoreConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Headless         bool          `yaml:"headless"`
	Bin              string        `yaml:"bin"`
	UserDataDir      string        `yaml:"user_data_dir"`
	Stealth          bool          `yaml:"stealth"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// PageConfig is one feed page to keep rewritten.
type PageConfig struct {
	ID        string   `yaml:"id"`
	URL       string   `yaml:"url"`
	Selectors []string `yaml:"selectors"`
}

// WatcherConfig tunes the per-page watcher.
type WatcherConfig struct {
	MaxChained int           `yaml:"max_chained"`
	Debounce   time.Duration `yaml:"debounce"`
}

// OptionsConfig configures the options surface.
type OptionsConfig struct {
	Listen string `yaml:"listen"`
	// User and PasswordHash (bcrypt) enable basic auth when both are set.
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"`
}

// ActionConfig configures the toolbar action.
type ActionConfig struct {
	OptionsURL string `yaml:"options_url"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the pages.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = "radlibs.db"
	}
	if c.Store.PollInterval <= 0 {
		c.Store.PollInterval = 500 * time.Millisecond
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Watcher.MaxChained <= 0 {
		c.Watcher.MaxChained = 8
	}
	if c.Options.Listen == "" {
		c.Options.Listen = "127.0.0.1:8470"
	}
	if c.Action.OptionsURL == "" {
		c.Action.OptionsURL = "http://" + c.Options.Listen + "/"
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
}

func (c *Config) validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Pages))
	for i, p := range c.Pages {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("config: pages[%d]: url is required", i))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("config: pages[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}
	return errors.Join(errs...)
}
