package model

import (
	"sort"
	"sync"
)

// Registry maps capabilities to ordered model chains and tracks endpoint
// health so that failing endpoints drop out of the chain.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig

	health *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	Description string `json:"description" yaml:"description"`

	// Preferred lists models in order of preference.
	Preferred []string `json:"preferred" yaml:"preferred"`

	// Fallback lists backup models tried after every preferred one.
	Fallback []string `json:"fallback" yaml:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the registered provider name (anthropic, ollama, openai).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the base URL; empty selects the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model serves capabilities that have no entry of their own.
	Model string `json:"model" yaml:"model"`
}

// NewRegistry creates a registry with the default breaker settings.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     &DefaultsConfig{Model: "default"},
		health:       newHealthState(DefaultHealthConfig()),
	}
}

// NewDefaultRegistry points validation and drafting at a local Ollama
// model with hosted Anthropic fallbacks. Used when no registry file is set.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(map[Capability]*CapabilityConfig{
		CapabilityValidating: {
			Description: "Field validation against rubric and locked context",
			Preferred:   []string{"qwen"},
			Fallback:    []string{"claude-haiku"},
		},
		CapabilityDrafting: {
			Description: "Seed text to draft definition fields",
			Preferred:   []string{"qwen"},
			Fallback:    []string{"claude-sonnet"},
		},
		CapabilityFast: {
			Description: "Short utility calls",
			Preferred:   []string{"llama3.2"},
			Fallback:    []string{"qwen"},
		},
	}, map[string]*EndpointConfig{
		"claude-sonnet": {
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 200000,
		},
		"claude-haiku": {
			Provider:  "anthropic",
			Model:     "claude-3-5-haiku-20241022",
			MaxTokens: 200000,
		},
		"qwen": {
			Provider:  "ollama",
			URL:       "http://localhost:11434/v1",
			Model:     "qwen2.5:14b",
			MaxTokens: 128000,
		},
		"llama3.2": {
			Provider:  "ollama",
			URL:       "http://localhost:11434/v1",
			Model:     "llama3.2",
			MaxTokens: 128000,
		},
	})
	r.defaults.Model = "qwen"
	return r
}

// Resolve returns the preferred model for a capability.
func (r *Registry) Resolve(cap Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// GetFallbackChain returns all models for a capability in order of preference.
func (r *Registry) GetFallbackChain(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Model}
}

// GetEndpoint returns the endpoint configuration for a model name, or nil.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// ListCapabilities returns all configured capabilities, sorted.
func (r *Registry) ListCapabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]Capability, 0, len(r.capabilities))
	for cap := range r.capabilities {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// ListEndpoints returns all configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CapabilityStatus is how one capability would be served right now.
type CapabilityStatus struct {
	Capability  Capability `json:"capability"`
	Description string     `json:"description,omitempty"`
	Chain       []string   `json:"chain"`
	// Available is Chain minus endpoints whose circuit is open.
	Available []string `json:"available"`
}

// EndpointStatus joins an endpoint's configuration with its breaker state.
type EndpointStatus struct {
	Name      string          `json:"name"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	URL       string          `json:"url,omitempty"`
	Available bool            `json:"available"`
	Health    *EndpointHealth `json:"health,omitempty"`
}

// Status is a point-in-time view of the registry for operators.
type Status struct {
	Default      string             `json:"default"`
	Capabilities []CapabilityStatus `json:"capabilities"`
	Endpoints    []EndpointStatus   `json:"endpoints"`
}

// Status reports every capability chain and endpoint, sorted by name.
func (r *Registry) Status() Status {
	r.mu.RLock()
	st := Status{Default: r.defaults.Model}
	r.mu.RUnlock()

	for _, cap := range r.ListCapabilities() {
		chain := r.GetFallbackChain(cap)
		cs := CapabilityStatus{
			Capability: cap,
			Chain:      chain,
			Available:  make([]string, 0, len(chain)),
		}
		r.mu.RLock()
		if cfg := r.capabilities[cap]; cfg != nil {
			cs.Description = cfg.Description
		}
		r.mu.RUnlock()
		for _, name := range chain {
			if r.IsEndpointAvailable(name) {
				cs.Available = append(cs.Available, name)
			}
		}
		st.Capabilities = append(st.Capabilities, cs)
	}

	for _, name := range r.ListEndpoints() {
		ep := r.GetEndpoint(name)
		st.Endpoints = append(st.Endpoints, EndpointStatus{
			Name:      name,
			Provider:  ep.Provider,
			Model:     ep.Model,
			URL:       ep.URL,
			Available: r.IsEndpointAvailable(name),
			Health:    r.GetEndpointHealth(name),
		})
	}
	return st
}
