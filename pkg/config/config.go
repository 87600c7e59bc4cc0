// Package config loads and validates pilotdeck configuration: service
// settings from YAML, MCP server definitions from mcp-config.json, and
// LLM provider credentials from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Provider identifiers accepted in settings and learning files.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the fully resolved runtime configuration returned by
// Initialize and used throughout the application.
type Config struct {
	Settings

	// MCPServers holds the server definitions keyed by server name.
	MCPServers map[string]MCPServerConfig

	// API keys resolved from the environment. Empty means the provider
	// is unavailable.
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// HasProvider reports whether credentials exist for the given provider.
func (c *Config) HasProvider(provider string) bool {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderAnthropic:
		return c.AnthropicAPIKey != ""
	default:
		return false
	}
}

// Initialize reads settings and MCP server definitions, resolves
// environment overrides, and validates the result. settingsPath may be
// empty to use built-in defaults.
func Initialize(settingsPath string) (*Config, error) {
	logger := slog.With("component", "config")

	// Step 1: Load service settings (YAML over defaults)
	settings, err := loadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Settings loaded",
		"path", settingsPath,
		"port", settings.Port,
		"learnings_dir", settings.LearningsDir)

	// Step 2: Apply environment overrides
	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, NewLoadError("environment", fmt.Errorf("%w: PORT=%q", ErrInvalidValue, portStr))
		}
		settings.Port = port
	}

	// Step 3: Load MCP server definitions
	servers, err := loadMCPServers(settings.MCPConfigPath)
	if err != nil {
		return nil, err
	}
	logger.Info("MCP server definitions loaded",
		"path", settings.MCPConfigPath,
		"servers", len(servers))

	cfg := &Config{
		Settings:        *settings,
		MCPServers:      servers,
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
	}

	// Step 4: Resolve LLM providers. At least one API key must be
	// present or the service cannot answer anything.
	if cfg.OpenAIAPIKey == "" && cfg.AnthropicAPIKey == "" {
		return nil, NewLoadError("environment",
			fmt.Errorf("%w: set OPENAI_API_KEY or ANTHROPIC_API_KEY", ErrMissingAPIKeys))
	}
	if !cfg.HasProvider(cfg.LLM.DefaultProvider) {
		fallback := ProviderOpenAI
		if cfg.OpenAIAPIKey == "" {
			fallback = ProviderAnthropic
		}
		logger.Warn("Default LLM provider has no API key, falling back",
			"configured", cfg.LLM.DefaultProvider,
			"fallback", fallback)
		cfg.LLM.DefaultProvider = fallback
	}

	// Step 5: Validate the assembled configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("Configuration ready",
		"default_provider", cfg.LLM.DefaultProvider,
		"mcp_servers", len(cfg.MCPServers))
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pilot.MaxTurns <= 0 {
		return NewValidationError("pilot", "pilot", "max_turns", ErrInvalidValue)
	}
	if c.Pilot.MaxRetries < 0 {
		return NewValidationError("pilot", "pilot", "max_retries", ErrInvalidValue)
	}
	if c.Learning.MaxIterations <= 0 {
		return NewValidationError("learning", "learning", "max_iterations", ErrInvalidValue)
	}
	for name, p := range c.LLM.Providers {
		if p.Model == "" {
			return NewValidationError("llm_provider", name, "model", ErrMissingRequiredField)
		}
		if p.MaxTokens <= 0 {
			return NewValidationError("llm_provider", name, "max_tokens", ErrInvalidValue)
		}
	}
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return NewValidationError("llm_provider", c.LLM.DefaultProvider, "", ErrConfigNotFound)
	}
	return nil
}
