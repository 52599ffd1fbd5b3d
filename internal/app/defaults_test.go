package app

import (
	"os"
	"path/filepath"
	"testing"

	"techpost/internal/config"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/config.toml")
		t.Setenv(EnvHome, "/custom/techpost")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults.ConfigPath != "/custom/config.toml" {
			t.Errorf("ConfigPath = %q, want %q", defaults.ConfigPath, "/custom/config.toml")
		}
		if defaults.BaseDir != "/custom/techpost" {
			t.Errorf("BaseDir = %q, want %q", defaults.BaseDir, "/custom/techpost")
		}
		if defaults.LogDir != "/custom/techpost/log" {
			t.Errorf("LogDir = %q, want %q", defaults.LogDir, "/custom/techpost/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "techpost.toml")
		if defaults.ConfigPath != wantConfig {
			t.Errorf("ConfigPath = %q, want %q", defaults.ConfigPath, wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "techpost")
		if defaults.BaseDir != wantBase {
			t.Errorf("BaseDir = %q, want %q", defaults.BaseDir, wantBase)
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Fatalf("LoadEnvFile() error = %v", err)
		}
	})

	t.Run("sets unset variables only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := EnvAPIURL + "=http://from-dotenv:5000\n" + EnvHome + "=/from/dotenv\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvAPIURL, "")
		os.Unsetenv(EnvAPIURL)
		t.Setenv(EnvHome, "/already/set")

		if err := LoadEnvFile(path); err != nil {
			t.Fatalf("LoadEnvFile() error = %v", err)
		}
		if got := os.Getenv(EnvAPIURL); got != "http://from-dotenv:5000" {
			t.Errorf("%s = %q, want value from file", EnvAPIURL, got)
		}
		if got := os.Getenv(EnvHome); got != "/already/set" {
			t.Errorf("%s = %q, want existing value kept", EnvHome, got)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())

	t.Setenv(EnvAPIURL, "")
	ApplyEnv(cfg)
	if cfg.API.BaseURL != config.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.API.BaseURL)
	}

	t.Setenv(EnvAPIURL, "https://techpost.example")
	ApplyEnv(cfg)
	if cfg.API.BaseURL != "https://techpost.example" {
		t.Errorf("BaseURL = %q, want override", cfg.API.BaseURL)
	}
}
