package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultBaseURL      = "http://localhost:5000"
	DefaultTimeout      = "30s"
	DefaultPreviewCount = 2
)

// Config represents the main configuration for techpost.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	API        APIConfig        `toml:"api"`
	Session    SessionConfig    `toml:"session"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Comments   CommentsConfig   `toml:"comments"`
}

// APIConfig locates the TechPost server.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"` // Go duration, e.g. "30s"
}

// TimeoutDuration parses Timeout. An empty value selects DefaultTimeout.
func (c APIConfig) TimeoutDuration() (time.Duration, error) {
	s := c.Timeout
	if s == "" {
		s = DefaultTimeout
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid api timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("api timeout must be positive, got %s", d)
	}
	return d, nil
}

// SessionConfig selects where the session credential is persisted.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SessionConfig struct {
	Type    string `toml:"type"`               // "filesystem", "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=filesystem
}

// EncryptionConfig holds the age key pair used to seal the stored credential.
type EncryptionConfig struct {
	Type          string `toml:"type"` // "age" (default), "test" or "none"
	RecipientPath string `toml:"recipient_path"`
	IdentityPath  string `toml:"identity_path"`
}

// DatabaseConfig represents configuration for the local database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CommentsConfig controls the comment list of a post view.
type CommentsConfig struct {
	PreviewCount int `toml:"preview_count"` // comments shown before "show all"
}

// NewConfig creates a Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Session: SessionConfig{
			Type:    "filesystem",
			DataDir: filepath.Join(baseDir, "session"),
		},
		Encryption: EncryptionConfig{
			Type:          "age",
			RecipientPath: filepath.Join(baseDir, "keys", "techpost.pub"),
			IdentityPath:  filepath.Join(baseDir, "keys", "techpost.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Comments: CommentsConfig{PreviewCount: DefaultPreviewCount},
	}
}

// Validate checks the settings that cannot be checked by the component
// factories themselves.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api base_url must be http or https, got %q", c.API.BaseURL)
	}
	if _, err := c.API.TimeoutDuration(); err != nil {
		return err
	}
	if c.Comments.PreviewCount < 0 {
		return fmt.Errorf("comments preview_count must not be negative, got %d", c.Comments.PreviewCount)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
