// Package config loads the application configuration from a YAML file in
// the user's config dir.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Language is the BCP 47 tag sent with every query.
	Language string `yaml:"language"`
	// Database is the path of the menu SQLite database.
	Database string `yaml:"database"`
	// PerplexityCookies seed an account-owning session. Leave empty for an
	// anonymous one.
	PerplexityCookies map[string]string `yaml:"perplexity_cookies"`
	// EmailnatorCookies seed the disposable mailbox service used by
	// account provisioning.
	EmailnatorCookies map[string]string `yaml:"emailnator_cookies"`
}

func defaults(configDir string) Config {
	return Config{
		Language: "en-US",
		Database: filepath.Join(configDir, "menu.db"),
	}
}

// Dir returns the application's config directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find user config dir: %w", err)
	}
	dir := filepath.Join(base, "warung22")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the config at path, applying defaults for unset fields. A
// missing file yields the pure defaults.
func Load(path string) (Config, error) {
	cfg := defaults(filepath.Dir(path))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config '%v': %w", path, err)
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Database == "" {
		cfg.Database = filepath.Join(filepath.Dir(path), "menu.db")
	}
	return cfg, nil
}
