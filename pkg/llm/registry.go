package llm

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/pilotdeck/pilotdeck/pkg/config"
)

// Registry holds one Client per configured provider and knows which one is
// the default.
type Registry struct {
	clients         map[string]Client
	models          map[string]string
	defaultProvider string
}

// NewRegistry builds clients for every provider with an API key. The config
// loader guarantees at least one key is present and that the default provider
// has one.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	logger := slog.With("component", "llm")

	r := &Registry{
		clients:         make(map[string]Client),
		models:          make(map[string]string),
		defaultProvider: cfg.LLM.DefaultProvider,
	}

	if cfg.OpenAIAPIKey != "" {
		pc := cfg.LLM.Providers[config.ProviderOpenAI]
		r.clients[config.ProviderOpenAI] = NewOpenAIFromAPIKey(cfg.OpenAIAPIKey, pc)
		r.models[config.ProviderOpenAI] = pc.Model
		logger.Info("LLM provider registered", "provider", config.ProviderOpenAI, "model", pc.Model)
	}
	if cfg.AnthropicAPIKey != "" {
		pc := cfg.LLM.Providers[config.ProviderAnthropic]
		r.clients[config.ProviderAnthropic] = NewAnthropicFromAPIKey(cfg.AnthropicAPIKey, pc)
		r.models[config.ProviderAnthropic] = pc.Model
		logger.Info("LLM provider registered", "provider", config.ProviderAnthropic, "model", pc.Model)
	}

	if len(r.clients) == 0 {
		return nil, fmt.Errorf("no LLM providers available")
	}
	if _, ok := r.clients[r.defaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q has no client", r.defaultProvider)
	}
	return r, nil
}

// Register adds or replaces a provider's client. The first registration
// becomes the default when none is set. Intended for tests and embedders
// that build their own clients; NewRegistry covers the normal path.
func (r *Registry) Register(provider, model string, client Client) {
	if r.clients == nil {
		r.clients = make(map[string]Client)
		r.models = make(map[string]string)
	}
	if r.defaultProvider == "" {
		r.defaultProvider = provider
	}
	r.clients[provider] = client
	r.models[provider] = model
}

// Client returns the client for the given provider, or the default when the
// provider is empty.
func (r *Registry) Client(provider string) (Client, error) {
	if provider == "" {
		provider = r.defaultProvider
	}
	c, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
	return c, nil
}

// Default returns the default provider's client.
func (r *Registry) Default() Client {
	return r.clients[r.defaultProvider]
}

// DefaultProvider returns the default provider identifier.
func (r *Registry) DefaultProvider() string {
	return r.defaultProvider
}

// Model returns the configured model identifier for a provider.
func (r *Registry) Model(provider string) string {
	if provider == "" {
		provider = r.defaultProvider
	}
	return r.models[provider]
}

// Providers lists the registered provider identifiers in sorted order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
