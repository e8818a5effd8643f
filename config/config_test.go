package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestProcessConfigDefaults(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{}
		processConfigDefaults(&cfg)

		if cfg.PollInterval != time.Minute {
			t.Errorf("Expected PollInterval to be 1m, got %s", cfg.PollInterval)
		}
		if cfg.MaxRetries != 3 {
			t.Errorf("Expected MaxRetries to be 3, got %d", cfg.MaxRetries)
		}
		if cfg.ChangelogLines != 15 {
			t.Errorf("Expected ChangelogLines to be 15, got %d", cfg.ChangelogLines)
		}
		if !cfg.SuppressInitial {
			t.Error("Expected SuppressInitial to default to true")
		}
		if cfg.UserAgent == "" {
			t.Error("Expected UserAgent to have a default value")
		}
		if cfg.PortalURL != "https://mods.factorio.com" {
			t.Errorf("Expected default portal URL, got %s", cfg.PortalURL)
		}
	})

	t.Run("respects existing values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{
			PollInterval:    5 * time.Minute,
			SendConcurrency: 9,
			UserAgent:       "custom-agent",
			PortalURL:       "http://localhost:9999",
		}
		processConfigDefaults(&cfg)

		if cfg.PollInterval != 5*time.Minute {
			t.Errorf("Expected PollInterval to stay 5m, got %s", cfg.PollInterval)
		}
		if cfg.SendConcurrency != 9 {
			t.Errorf("Expected SendConcurrency to stay 9, got %d", cfg.SendConcurrency)
		}
		if cfg.UserAgent != "custom-agent" {
			t.Errorf("Expected UserAgent to stay custom-agent, got %s", cfg.UserAgent)
		}
		if cfg.PortalURL != "http://localhost:9999" {
			t.Errorf("Expected PortalURL to stay, got %s", cfg.PortalURL)
		}
	})

	t.Run("explicit zero retries is kept", func(t *testing.T) {
		viper.Reset()
		viper.Set("MAX_RETRIES", 0)
		viper.Set("SUPPRESS_INITIAL", false)
		cfg := Config{}
		processConfigDefaults(&cfg)

		if cfg.MaxRetries != 0 {
			t.Errorf("Expected MaxRetries to stay 0, got %d", cfg.MaxRetries)
		}
		if cfg.SuppressInitial {
			t.Error("Expected SuppressInitial to stay false when set explicitly")
		}
	})
}

func TestValidateAndEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing data dir", func(t *testing.T) {
		cfg := Config{DataDir: "", SendBurst: 1}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error for missing DataDir")
		}
	})

	t.Run("fetch timeout larger than cycle timeout", func(t *testing.T) {
		cfg := Config{DataDir: tmpDir, SendBurst: 1, FetchTimeout: time.Hour, CycleTimeout: time.Minute}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error when FETCH_TIMEOUT exceeds CYCLE_TIMEOUT")
		}
	})

	t.Run("creates directory and derives database path", func(t *testing.T) {
		dataDir := filepath.Join(tmpDir, "data")
		cfg := Config{DataDir: dataDir, SendBurst: 1}
		if err := validateAndEnsureDirectories(&cfg); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if _, err := os.Stat(dataDir); os.IsNotExist(err) {
			t.Errorf("Directory %s was not created", dataDir)
		}
		if cfg.DatabasePath != filepath.Join(dataDir, "mods.db") {
			t.Errorf("Unexpected DatabasePath %s", cfg.DatabasePath)
		}
	})
}
