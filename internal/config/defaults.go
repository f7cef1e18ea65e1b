package config

import (
	"patchwork/internal/policy"
)

// Default returns the built-in configuration: standard tier, default policy,
// history database under the project dot-directory.
func Default() *Config {
	return &Config{
		Tier:        TierStandard,
		HistoryPath: ".patchwork/history.db",
		Model: ModelConfig{
			Command: "claude",
		},
		Policy: policy.Default(),
	}
}
