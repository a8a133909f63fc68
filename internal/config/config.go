// Package config handles Paqbot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/paqbot/config.yaml, /etc/paqbot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "paqbot", "config.yaml"))
	}

	paths = append(paths, "/etc/paqbot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Paqbot configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Providers ProvidersConfig `yaml:"providers"`
	Database  DatabaseConfig  `yaml:"database"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Assistant AssistantConfig `yaml:"assistant"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProvidersConfig defines the LLM provider candidates.
//
// Order lists provider names in fallback order; the chat handler tries
// each in turn until one succeeds. Providers without an API key are
// skipped entirely. API keys set here can be overridden at runtime by
// the settings record in the data store, so operators can rotate keys
// without a restart.
type ProvidersConfig struct {
	Order    []string       `yaml:"order"`
	Mistral  ProviderConfig `yaml:"mistral"`
	DeepSeek ProviderConfig `yaml:"deepseek"`
}

// ProviderConfig defines a single LLM provider's settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // Override for proxies or self-hosted gateways
}

// DatabaseConfig defines the SQLite data service location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TrackingConfig defines the carrier scan-event subscriber.
//
// Scan events arrive over MQTT from warehouse and courier scanners and
// update shipment status in the data store.
type TrackingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. mqtt://broker.bodega.local:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // Default: "paq"
	QRBaseURL   string `yaml:"qr_base_url"`  // Public tracking URL prefix for QR labels
}

// AssistantConfig defines conversation loop settings.
type AssistantConfig struct {
	// MaxIterations caps the number of model calls per chat request.
	// Guards against tool-call ping-pong burning tokens. Default 5.
	MaxIterations int `yaml:"max_iterations"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Providers: ProvidersConfig{
			Order:    []string{"mistral", "deepseek"},
			Mistral:  ProviderConfig{Model: "mistral-small-latest"},
			DeepSeek: ProviderConfig{Model: "deepseek-chat"},
		},
		Database: DatabaseConfig{Path: "paqbot.db"},
		Tracking: TrackingConfig{
			TopicPrefix: "paq",
			QRBaseURL:   "https://rastreo.enviamx.com/t/",
		},
		Assistant: AssistantConfig{MaxIterations: 5},
	}
}
