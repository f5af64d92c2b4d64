package router

import (
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/goliatone/go-repository-router/internal/naming"
)

// Loader discovers backend factories that were not registered up front, for
// example plugins described in configuration. Load resolves a single type;
// LoadAll returns every type the loader knows for a router.
type Loader interface {
	Load(routerName, typeName string) (Factory, bool)
	LoadAll(routerName string) map[string]Factory
}

// Registry maps (router name, backend type name) to backend factories.
// Registration happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]map[string]Factory
	loader    Loader
	// loaded tracks router namespaces fully listed through the loader.
	loaded map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]map[string]Factory),
		loaded:    make(map[string]bool),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// SetLoader installs the discovery hook used when a lookup misses.
func (r *Registry) SetLoader(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = l
	r.loaded = make(map[string]bool)
}

// Register binds factory to (routerName, typeName). Names are normalized to
// lower_snake. Registering the same pair twice is rejected.
func (r *Registry) Register(routerName, typeName string, factory Factory) error {
	rn, tn := naming.Normalize(routerName), naming.Normalize(typeName)
	if rn == "" {
		return configErrorf("", "backend %q registered without a router name", typeName)
	}
	if tn == "" {
		return configErrorf(rn, "backend registered without a type name")
	}
	if factory == nil {
		return configErrorf(rn, "backend %q registered without a factory", tn)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	types, ok := r.factories[rn]
	if !ok {
		types = make(map[string]Factory)
		r.factories[rn] = types
	}
	if _, exists := types[tn]; exists {
		return errors.AlreadyExistsf("backend %q for router %q", tn, rn)
	}
	types[tn] = factory
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (r *Registry) MustRegister(routerName, typeName string, factory Factory) {
	if err := r.Register(routerName, typeName, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for (routerName, typeName). A miss is reported
// with false; the caller decides whether that is fatal.
func (r *Registry) Lookup(routerName, typeName string) (Factory, bool) {
	rn, tn := naming.Normalize(routerName), naming.Normalize(typeName)
	if rn == "" || tn == "" {
		return nil, false
	}

	r.mu.RLock()
	f, ok := r.factories[rn][tn]
	loader := r.loader
	r.mu.RUnlock()
	if ok {
		return f, true
	}
	if loader == nil {
		return nil, false
	}

	f, ok = loader.Load(rn, tn)
	if !ok || f == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	types, exists := r.factories[rn]
	if !exists {
		types = make(map[string]Factory)
		r.factories[rn] = types
	}
	// Another goroutine may have won the race; keep the first registration.
	if existing, exists := types[tn]; exists {
		return existing, true
	}
	types[tn] = f
	return f, true
}

// AllTypes forces discovery of every backend type for routerName and returns
// the sorted type names. It is meant for reference output, not hot paths.
func (r *Registry) AllTypes(routerName string) []string {
	rn := naming.Normalize(routerName)

	r.mu.Lock()
	if r.loader != nil && !r.loaded[rn] {
		for name, f := range r.loader.LoadAll(rn) {
			tn := naming.Normalize(name)
			if tn == "" || f == nil {
				continue
			}
			types, ok := r.factories[rn]
			if !ok {
				types = make(map[string]Factory)
				r.factories[rn] = types
			}
			if _, exists := types[tn]; !exists {
				types[tn] = f
			}
		}
		r.loaded[rn] = true
	}
	names := make([]string, 0, len(r.factories[rn]))
	for name := range r.factories[rn] {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// Routers returns the sorted router names with at least one registered backend.
func (r *Registry) Routers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all registrations and the loader.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]map[string]Factory)
	r.loaded = make(map[string]bool)
	r.loader = nil
}

// LoaderFunc adapts a single-type lookup function to Loader. LoadAll returns
// nothing, so AllTypes only lists explicit registrations.
type LoaderFunc func(routerName, typeName string) (Factory, bool)

// Load calls f.
func (f LoaderFunc) Load(routerName, typeName string) (Factory, bool) {
	return f(routerName, typeName)
}

// LoadAll returns nil.
func (f LoaderFunc) LoadAll(string) map[string]Factory {
	return nil
}
