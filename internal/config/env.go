package config

import (
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable, e.g. PANICSAVE_HOST_PID
const EnvPrefix = "PANICSAVE"

// LoadFromEnv loads configuration from environment variables.
// Environment variables override values already present in cfg.
func LoadFromEnv(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}

// New creates a new Config with default values and loads from environment
func New() (*Config, error) {
	cfg := Default()
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
