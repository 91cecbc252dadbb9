// Package config loads the Agent Execution Core's file-based
// configuration, mirroring the teacher's internal/config package: a YAML
// file read once at startup, environment variables expanded into its
// values, then overridden field-by-field by explicit env vars so a
// deployment never has to edit the file just to swap a credential.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/agentcore/internal/compaction"
)

// Config is the subset of the teacher's sprawling Config this core
// actually needs: which model to drive, where its workspace and session
// data live, and the compaction thresholds governing C7.
type Config struct {
	Model        ModelConfig       `yaml:"model"`
	Workspace    string            `yaml:"workspace"`
	DataDir      string            `yaml:"data_dir"`
	SystemPrompt string            `yaml:"system_prompt"`
	PlanMode     bool              `yaml:"plan_mode"`
	Compaction   compaction.Options `yaml:"compaction"`
	MaxRetries   int               `yaml:"max_retries"`
	Temperature  float64           `yaml:"temperature"`
	MaxTokens    int               `yaml:"max_tokens"`
}

// ModelConfig names the model id to resolve. BaseURL is parsed from the
// file but not read by cmd/agentcore; provider credentials and base URLs
// come from the environment via providers.LoadProviderConfig.
type ModelConfig struct {
	ID      string `yaml:"id"`
	BaseURL string `yaml:"base_url"`
}

// Default returns the configuration a bare invocation runs with when no
// file is supplied.
func Default() Config {
	return Config{
		Model:        ModelConfig{ID: "glm-4.7"},
		Workspace:    ".",
		DataDir:      "./.agentcore",
		SystemPrompt: "You are a careful, terse coding assistant.",
		Compaction:   compaction.DefaultOptions(),
		MaxRetries:   10,
		Temperature:  0.7,
		MaxTokens:    4096,
	}
}

// Load reads path as YAML over top of Default(), expanding ${VAR} /
// $VAR references the way the teacher's loader.go does via
// os.ExpandEnv, so a checked-in config file can reference secrets
// without embedding them. An empty path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnvOverrides layers environment variables on top of cfg,
// mirroring the teacher's config precedence (file, then env). Only
// AGENTCORE_MODEL_ID, AGENTCORE_WORKSPACE, and AGENTCORE_DATA_DIR are
// recognized; provider credentials are handled separately by
// providers.LoadProviderConfig, which already reads its own env vars.
func ApplyEnvOverrides(cfg Config, getenv func(string) string) Config {
	if v := getenv("AGENTCORE_MODEL_ID"); v != "" {
		cfg.Model.ID = v
	}
	if v := getenv("AGENTCORE_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := getenv("AGENTCORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	return cfg
}
