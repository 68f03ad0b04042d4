package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the environment variable that points at the config file
const ConfigPathEnv = "PANICSAVE_CONFIG"

// DefaultPath returns ~/.config/panicsave/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "panicsave", "config.yaml")
}

// LoadFile overlays the YAML file at path onto cfg
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the config file,
// then environment variables. An explicit path must exist; the default
// location is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigPathEnv)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}

	if err := LoadFile(cfg, path); err != nil {
		if explicit || !os.IsNotExist(errors.Cause(err)) {
			return nil, err
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}

	return cfg, nil
}
