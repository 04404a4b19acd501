package axis

import "sync"

// Registry holds the active catalog. Readers take one snapshot per request
// so a concurrent reload never mixes presets from two catalogs.
type Registry struct {
	mu      sync.RWMutex
	catalog *Catalog
}

// NewRegistry creates a registry serving c, or the built-in catalog when c
// is nil.
func NewRegistry(c *Catalog) *Registry {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Registry{catalog: c}
}

// Catalog returns the active catalog.
func (r *Registry) Catalog() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Replace swaps in a new catalog.
func (r *Registry) Replace(c *Catalog) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = c
}
