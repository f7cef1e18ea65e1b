package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and merges configuration from the global and project paths.
// Precedence, highest first: project file, global file, defaults. A missing
// file is not an error; a malformed one is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := Default()

	if globalPath != "" {
		if err := mergeFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads from the conventional paths:
// ~/.patchwork/config.yaml and .patchwork/config.yaml.
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return Load(
		filepath.Join(homeDir, ".patchwork", "config.yaml"),
		filepath.Join(".patchwork", "config.yaml"),
	)
}

// mergeFile decodes a YAML file over the current config: keys present in the
// file overwrite, absent keys keep their value.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
