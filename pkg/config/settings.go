package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Settings is the pilotdeck.yaml file structure. Every field has a working
// default; the file itself is optional.
type Settings struct {
	Port          int            `yaml:"port"`
	LearningsDir  string         `yaml:"learnings_dir"`
	MCPConfigPath string         `yaml:"mcp_config_path"`
	Pilot         PilotConfig    `yaml:"pilot"`
	Learning      LearningConfig `yaml:"learning"`
	LLM           LLMConfig      `yaml:"llm"`
	Sessions      SessionConfig  `yaml:"sessions"`
}

// PilotConfig bounds the Pilot loop.
type PilotConfig struct {
	// MaxTurns is the maximum number of Pilot decisions per user message.
	MaxTurns int `yaml:"max_turns"`
	// MaxRetries is the number of additional attempts after an empty or
	// errored completion.
	MaxRetries int `yaml:"max_retries"`
}

// LearningConfig bounds the learning loop.
type LearningConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// SessionConfig controls per-session state retention.
type SessionConfig struct {
	// MaxIdle is how long a session may sit untouched before the janitor
	// drops it, history and variables included.
	MaxIdle time.Duration `yaml:"max_idle"`

	// SweepInterval is how often idle sessions are collected.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LLMConfig selects providers and models.
type LLMConfig struct {
	// DefaultProvider is used when a request does not name one.
	// One of "openai", "anthropic".
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds per-provider model settings.
type ProviderConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// DefaultSettings returns the built-in settings used when pilotdeck.yaml is
// absent or partial.
func DefaultSettings() *Settings {
	return &Settings{
		Port:          8084,
		LearningsDir:  "./learnings",
		MCPConfigPath: "./mcp-config.json",
		Pilot: PilotConfig{
			MaxTurns:   10,
			MaxRetries: 3,
		},
		Learning: LearningConfig{
			MaxIterations: 50,
		},
		Sessions: SessionConfig{
			MaxIdle:       8 * time.Hour,
			SweepInterval: 15 * time.Minute,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]ProviderConfig{
				"openai": {
					Model:       "gpt-4o",
					MaxTokens:   4096,
					Temperature: 0.2,
				},
				"anthropic": {
					Model:     "claude-sonnet-4-5",
					MaxTokens: 4096,
				},
			},
		},
	}
}

// loadSettings reads pilotdeck.yaml from path, expands {{.VAR}} template
// references against the environment, and merges the result over the built-in
// defaults. A missing file yields the defaults unchanged.
func loadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var fromFile Settings
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	// Merge user-provided values into defaults (non-zero values override).
	if err := mergo.Merge(settings, fromFile, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("merge settings: %w", err))
	}

	return settings, nil
}
