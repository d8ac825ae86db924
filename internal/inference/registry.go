package inference

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks the model backends loaded into the process, keyed by
// capability. Handlers look their backend up per request, so a backend can
// be registered or replaced while the server is running.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register installs a backend under its capability, replacing any previous
// backend for the same capability.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Capability()] = b
}

// Get returns the backend for a capability.
func (r *Registry) Get(capability string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[capability]
	if !ok {
		return nil, fmt.Errorf("no backend loaded for %q (loaded: %v)", capability, r.loadedLocked())
	}
	return b, nil
}

// Loaded returns the sorted capability names with a backend attached.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedLocked()
}

// Count returns how many backends are loaded.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

func (r *Registry) loadedLocked() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
