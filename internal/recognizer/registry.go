package recognizer

import (
	"fmt"
	"sort"
	"sync"
)

// Factory opens an engine backend from string options.
type Factory func(opts map[string]string) (Engine, error)

// Backend is a registered engine backend.
type Backend struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry maps backend names to factories.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]*Backend)}
}

var defaultRegistry = NewRegistry()

// Register adds a backend to the default registry.
// Typically called from a backend package's init function.
// Panics if a backend with the same name is already registered.
func Register(b *Backend) {
	defaultRegistry.Register(b)
}

// Open creates an engine from the default registry.
func Open(name string, opts map[string]string) (Engine, error) {
	return defaultRegistry.Open(name, opts)
}

// Backends lists backends in the default registry, sorted by name.
func Backends() []*Backend {
	return defaultRegistry.Backends()
}

// Register adds a backend to this registry.
// Panics if a backend with the same name is already registered.
func (r *Registry) Register(b *Backend) {
	if b == nil || b.Name == "" || b.Factory == nil {
		panic("recognizer: backend must have a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[b.Name]; exists {
		panic(fmt.Sprintf("recognizer: backend %q already registered", b.Name))
	}
	r.backends[b.Name] = b
}

// Open creates an engine using the named backend's factory.
func (r *Registry) Open(name string, opts map[string]string) (Engine, error) {
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown recognizer backend %q (available: %v)", name, r.names())
	}
	eng, err := b.Factory(opts)
	if err != nil {
		return nil, fmt.Errorf("open backend %q: %w", name, err)
	}
	return eng, nil
}

// Backends lists registered backends sorted by name.
func (r *Registry) Backends() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) names() []string {
	var names []string
	for _, b := range r.Backends() {
		names = append(names, b.Name)
	}
	return names
}
