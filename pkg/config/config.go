package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Gateways  map[string]GatewayConfig  `yaml:"gateways"`
	Policy    PolicyConfig              `yaml:"policy"`
	Engine    EngineConfig              `yaml:"engine"`
	Healing   HealingConfig             `yaml:"healing"`
	Audit     AuditConfig               `yaml:"audit"`
}

type AppConfig struct {
	Name          string `yaml:"name"`
	PromptsDir    string `yaml:"prompts_dir"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
	Enabled bool   `yaml:"enabled"`
}

type PolicyConfig struct {
	// Path points at the YAML risk-policy overrides; empty keeps the
	// built-in table.
	Path string `yaml:"path"`
}

type EngineConfig struct {
	PrimitiveTimeoutSec int `yaml:"primitive_timeout_sec"`
	SettleDelayMs       int `yaml:"settle_delay_ms"`
}

type HealingConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

type AuditConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

func LoadConfig(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	return &cfg
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled && tg.Token != "" {
		return tg, true
	}
	return GatewayConfig{}, false
}
