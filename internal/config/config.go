// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key,omitempty"`
	RequestTimeout int    `yaml:"request_timeout,omitempty"` // seconds, non-streaming requests
}

type SessionConfig struct {
	PollInterval      int    `yaml:"poll_interval"`                 // seconds
	StreamIdleTimeout int    `yaml:"stream_idle_timeout,omitempty"` // seconds, 0 disables
	DefaultGroup      string `yaml:"default_group,omitempty"`
	WaitingHeuristics *bool  `yaml:"waiting_heuristics,omitempty"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
}

func Load() (*Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		// Return defaults if no config file
		return defaultConfig(), nil
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8000"
	}
	if cfg.Server.APIKey == "" {
		cfg.Server.APIKey = os.Getenv("PARLEY_API_KEY")
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 15
	}
	if cfg.Session.PollInterval == 0 {
		cfg.Session.PollInterval = 5
	}
}

// PollInterval returns the sweep interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Session.PollInterval) * time.Second
}

// RequestTimeout bounds non-streaming backend requests.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// StreamIdleTimeout returns the stream watchdog window; zero disables it.
func (c *Config) StreamIdleTimeout() time.Duration {
	return time.Duration(c.Session.StreamIdleTimeout) * time.Second
}

// Heuristics reports whether waiting-phrase detection is enabled.
// Defaults to true when unset.
func (c *Config) Heuristics() bool {
	if c.Session.WaitingHeuristics == nil {
		return true
	}
	return *c.Session.WaitingHeuristics
}

func Path() string {
	configDir, err := os.UserConfigDir()
	if err != nil || configDir == "" {
		configDir = os.ExpandEnv("$HOME/.config")
	}
	return filepath.Join(configDir, "parley", "config.yaml")
}
