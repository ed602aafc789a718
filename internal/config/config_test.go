// internal/config/config_test.go
package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL default wrong, got %s", cfg.Server.BaseURL)
	}
	if cfg.Session.PollInterval != 5 {
		t.Errorf("PollInterval should be 5, got %d", cfg.Session.PollInterval)
	}
	if cfg.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval() should be 5s, got %v", cfg.PollInterval())
	}
	if cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("RequestTimeout() should be 15s, got %v", cfg.RequestTimeout())
	}
	if cfg.StreamIdleTimeout() != 0 {
		t.Errorf("StreamIdleTimeout() should default to disabled, got %v", cfg.StreamIdleTimeout())
	}
	if !cfg.Heuristics() {
		t.Error("waiting heuristics should default to enabled")
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
}

func TestHeuristicsExplicitOff(t *testing.T) {
	off := false
	cfg := &Config{Session: SessionConfig{WaitingHeuristics: &off}}
	if cfg.Heuristics() {
		t.Error("explicit false must disable heuristics")
	}
}
