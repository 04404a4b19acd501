package llm

import (
	"net/http"
	"sort"
	"sync"
)

// Provider adapts one vendor's chat API to Request and Response.
type Provider interface {
	// Name is the key endpoints use in the model registry ("ollama").
	Name() string

	// BuildURL returns the completion endpoint under baseURL; an empty
	// baseURL selects the vendor default.
	BuildURL(baseURL string) string

	SetHeaders(req *http.Request)

	// BuildRequestBody encodes req for model. Messages keep their order,
	// and system messages carry the compiled instruction blocks.
	BuildRequestBody(model string, req Request) ([]byte, error)

	// ParseResponse decodes a 200 body. Reasoning a model reports apart
	// from its answer goes to Response.Reasoning.
	ParseResponse(body []byte, model string) (*Response, error)
}

var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names, sorted.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
