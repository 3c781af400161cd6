package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/tubelens/tubelens/internal/gateway"
	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/util"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "config.yaml"

// Config is the process configuration loaded at startup.
type Config struct {
	Listen      string `yaml:"listen"`
	DatabaseDSN string `yaml:"database-dsn"`

	Log Log `yaml:"log"`

	Providers Providers `yaml:"providers"`
}

// Log configures logrus output and file rotation.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Providers groups per-provider settings.
type Providers struct {
	YouTube Provider       `yaml:"youtube"`
	OpenAI  OpenAIProvider `yaml:"openai"`
	Vision  Provider       `yaml:"vision"`
}

// Provider holds settings shared by all provider types. FallbackSecret is
// the process-wide environment fallback credential; empty means no fallback.
type Provider struct {
	FallbackSecret string `yaml:"fallback-secret"`
	BaseURL        string `yaml:"base-url"`
}

// OpenAIProvider extends Provider with cost-estimation settings.
type OpenAIProvider struct {
	Provider `yaml:",inline"`
	Cost     gateway.OpenAICostConfig `yaml:"cost"`
}

// Load reads the YAML config at path, applying defaults and environment
// overrides. A missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:      ":8080",
		DatabaseDSN: "file:data/tubelens.db",
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}

	if path = strings.TrimSpace(path); path != "" {
		data, errRead := os.ReadFile(path)
		switch {
		case errRead == nil:
			if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
			}
		case os.IsNotExist(errRead):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	}

	applyEnvOverrides(cfg)

	if strings.TrimSpace(cfg.Listen) == "" {
		return nil, fmt.Errorf("config: empty listen address")
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, fmt.Errorf("config: empty database dsn")
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment configuration win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := util.EnvValue("TUBELENS_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := util.EnvValue("TUBELENS_DB_DSN", "DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := util.EnvValue("TUBELENS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := util.EnvValue("YOUTUBE_FALLBACK_API_KEY"); v != "" {
		cfg.Providers.YouTube.FallbackSecret = v
	}
	if v := util.EnvValue("OPENAI_FALLBACK_API_KEY"); v != "" {
		cfg.Providers.OpenAI.FallbackSecret = v
	}
	if v := util.EnvValue("VISION_FALLBACK_API_KEY"); v != "" {
		cfg.Providers.Vision.FallbackSecret = v
	}
}

// FallbackSecrets returns the configured environment fallback credentials
// keyed by provider type, omitting providers without one.
func (c *Config) FallbackSecrets() map[models.ProviderType]string {
	out := make(map[models.ProviderType]string, 3)
	if secret := strings.TrimSpace(c.Providers.YouTube.FallbackSecret); secret != "" {
		out[models.ProviderYouTube] = secret
	}
	if secret := strings.TrimSpace(c.Providers.OpenAI.FallbackSecret); secret != "" {
		out[models.ProviderOpenAI] = secret
	}
	if secret := strings.TrimSpace(c.Providers.Vision.FallbackSecret); secret != "" {
		out[models.ProviderVision] = secret
	}
	return out
}
