// Package config holds the session configuration: effort tier presets, the
// sandbox root, model endpoint settings, and the permission policy. Loaded
// once at session start and immutable afterwards.
package config

import (
	"fmt"
	"time"

	"patchwork/internal/policy"
)

// Tier names an effort preset. The tier decides the scheduler's concurrency
// budget and the debug-loop ceiling; adding a tier means adding a preset,
// not new control flow.
type Tier string

const (
	TierFast     Tier = "fast"
	TierStandard Tier = "standard"
	TierDeep     Tier = "deep"
)

// Preset is the knob bundle one tier expands to.
type Preset struct {
	Concurrency  int
	DebugCeiling int
	AgentTimeout time.Duration
}

var presets = map[Tier]Preset{
	TierFast:     {Concurrency: 2, DebugCeiling: 0, AgentTimeout: 2 * time.Minute},
	TierStandard: {Concurrency: 4, DebugCeiling: 3, AgentTimeout: 5 * time.Minute},
	TierDeep:     {Concurrency: 6, DebugCeiling: 5, AgentTimeout: 10 * time.Minute},
}

// Preset resolves the tier to its knobs.
func (t Tier) Preset() (Preset, error) {
	p, ok := presets[t]
	if !ok {
		return Preset{}, fmt.Errorf("unknown tier %q", t)
	}
	return p, nil
}

// ModelConfig configures the CLI model endpoint.
type ModelConfig struct {
	Command string `yaml:"command"`
	Model   string `yaml:"model,omitempty"`
}

// Config is the top-level session configuration.
type Config struct {
	Tier        Tier           `yaml:"tier"`
	Root        string         `yaml:"root,omitempty"`
	TempDir     string         `yaml:"temp_dir,omitempty"`
	HistoryPath string         `yaml:"history_path"`
	Model       ModelConfig    `yaml:"model"`
	Policy      *policy.Policy `yaml:"policy"`
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if _, err := c.Tier.Preset(); err != nil {
		return err
	}
	if c.Model.Command == "" {
		return fmt.Errorf("model.command is required")
	}
	if c.Policy == nil {
		return fmt.Errorf("policy is required")
	}
	return nil
}
