package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"techpost/internal/config"
)

// Environment variables read by techpost.
const (
	EnvConfigPath = "TECHPOST_CONFIG_PATH"
	EnvHome       = "TECHPOST_HOME"
	EnvAPIURL     = "TECHPOST_API_URL"
)

// Defaults are the locations used when nothing else is configured.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - TECHPOST_CONFIG_PATH: config file location (default: ~/.config/techpost.toml)
//   - TECHPOST_HOME: base directory for techpost data (default: ~/.local/share/techpost)
func GetDefaults() (Defaults, error) {
	homeDir, homeErr := os.UserHomeDir()

	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		if homeErr != nil {
			return Defaults{}, fmt.Errorf("cannot determine home directory: %w", homeErr)
		}
		configPath = filepath.Join(homeDir, ".config", "techpost.toml")
	}

	baseDir := os.Getenv(EnvHome)
	if baseDir == "" {
		if homeErr != nil {
			return Defaults{}, fmt.Errorf("cannot determine home directory: %w", homeErr)
		}
		baseDir = filepath.Join(homeDir, ".local", "share", "techpost")
	}

	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment overrides to cfg.
func ApplyEnv(cfg *config.Config) {
	if u := os.Getenv(EnvAPIURL); u != "" {
		cfg.API.BaseURL = u
	}
}
