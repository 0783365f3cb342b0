// Package config provides configuration loading and structs for the decora server.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" env:"DECORA_DEBUG"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
	Assistant AssistantConfig `yaml:"assistant"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Auth      AuthConfig      `yaml:"auth"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// ServerConfig holds HTTP server settings. PublicURL is the externally reachable base
// used when building upload URLs; it stays empty unless configured.
type ServerConfig struct {
	Host      string `yaml:"host" env:"DECORA_SERVER_HOST"`
	Port      int    `yaml:"port" env:"DECORA_SERVER_PORT"`
	PublicURL string `yaml:"public_url" env:"DECORA_PUBLIC_URL"`
}

// BaseURL returns PublicURL, or the listen address when it is not set.
func (c *ServerConfig) BaseURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StorageConfig holds the persistence driver and paths for database, index, and uploads.
type StorageConfig struct {
	Driver         string `yaml:"driver" env:"DECORA_STORAGE_DRIVER"` // sqlite or mongo
	DatabasePath   string `yaml:"database_path"`
	MongoURI       string `yaml:"mongo_uri" env:"DECORA_MONGO_URI"`
	MongoDatabase  string `yaml:"mongo_database" env:"DECORA_MONGO_DATABASE"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	UploadsPath    string `yaml:"uploads_path"`
}

// AIConfig selects and tunes the generative model provider.
type AIConfig struct {
	Provider     string        `yaml:"provider" env:"DECORA_AI_PROVIDER"` // gemini, openrouter, or mock
	APIKey       string        `yaml:"api_key" env:"DECORA_AI_API_KEY"`
	Model        string        `yaml:"model" env:"DECORA_AI_MODEL"`
	BaseURL      string        `yaml:"base_url" env:"DECORA_AI_BASE_URL"`
	Timeout      time.Duration `yaml:"timeout"`
	HistoryLimit int           `yaml:"history_limit"`
	Temperature  *float64      `yaml:"temperature"`
}

// AssistantConfig tunes the message-send routine.
type AssistantConfig struct {
	MaxImages    int      `yaml:"max_images"`
	SystemPrompt string   `yaml:"system_prompt"`
	ImageHosts   []string `yaml:"image_hosts"`
}

// CatalogConfig lists catalog files or directories imported at startup and optionally watched.
type CatalogConfig struct {
	SeedPaths  []string `yaml:"seed_paths"`
	Watch      bool     `yaml:"watch"`
	Extensions []string `yaml:"extensions"`
}

// AuthConfig holds bearer token settings. An empty JWTSecret disables token checks.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"DECORA_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// TelegramConfig holds the bot token for the Telegram frontend.
type TelegramConfig struct {
	Token string `yaml:"token" env:"DECORA_TELEGRAM_TOKEN"`
}

// Load reads and parses the config file at path, overlays environment variables,
// expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.UploadsPath = expandPath(cfg.Storage.UploadsPath, configDir)
	for i := range cfg.Catalog.SeedPaths {
		cfg.Catalog.SeedPaths[i] = expandPath(cfg.Catalog.SeedPaths[i], configDir)
	}

	return &cfg, nil
}

// FromEnv builds a config from defaults and environment variables only. Used when
// no config file exists.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path. Used for persisting catalog seed paths.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
