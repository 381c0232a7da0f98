// Package config loads and manages arichat configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (ARICHAT_SERVER, ARICHAT_WS, ARICHAT_CONFIG_DIR)
// 2. Config file path specified via --config flag
// 3. ~/.config/arichat/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration structure for arichat.
type Config struct {
	// ServerURL is the HTTP API base, e.g. "https://ari.example.com/api".
	ServerURL string `yaml:"server_url"`

	// WebSocketURL is the WebSocket base, e.g. "wss://ari.example.com".
	// Empty = derived from ServerURL (http→ws, https→wss, /api stripped).
	WebSocketURL string `yaml:"websocket_url"`

	// RequestTimeoutSeconds bounds a single HTTP call. 0 = 30.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// CredentialsPath overrides where the token pair is persisted.
	// Empty = credentials.yaml next to the config file.
	CredentialsPath string `yaml:"credentials_path"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:             "http://localhost:8000/api",
		RequestTimeoutSeconds: 30,
	}
}

// RequestTimeout returns the HTTP call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Dir returns the arichat config directory, honoring ARICHAT_CONFIG_DIR.
func Dir() (string, error) {
	if d := os.Getenv("ARICHAT_CONFIG_DIR"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "arichat"), nil
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Determine config file path
	if configPath == "" {
		dir, err := Dir()
		if err == nil {
			configPath = filepath.Join(dir, "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Save writes the config into the arichat config directory.
func Save(cfg *Config) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARICHAT_SERVER"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("ARICHAT_WS"); v != "" {
		cfg.WebSocketURL = v
	}
}
