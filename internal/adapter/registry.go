// registry.go resolves adapter names to implementations.
package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh adapter instance.
type Factory func() Adapter

// Registry maps adapter names to factories. Resolving a name the registry
// does not know falls back to the mock adapter with a warning rather than
// failing the run; workflows stay executable on machines missing a backend.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory

	// Warn receives fallback notices. Nil drops them.
	Warn func(msg string)
}

// NewRegistry returns a registry with the mock adapter pre-registered
// under "mock".
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("mock", func() Adapter { return NewMock() })
	return r
}

// Register adds or replaces a named factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns an instance of the named adapter. An empty name means
// "mock". An unknown name warns and returns the mock adapter.
func (r *Registry) Resolve(name string) Adapter {
	if name == "" {
		name = "mock"
	}
	r.mu.Lock()
	f, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		if r.Warn != nil {
			r.Warn(fmt.Sprintf("unknown adapter %q, falling back to mock", name))
		}
		return NewMock()
	}
	return f()
}
