package router

import (
	"sort"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/goliatone/go-repository-router/internal/naming"
)

// Directory is the set of routers known to a process, keyed by name. It also
// carries what routers share: the backend registry, settings, clock and
// metrics.
type Directory struct {
	mu      sync.RWMutex
	routers map[string]*Router

	registry *Registry
	settings Settings
	clock    clock.Clock
	metrics  *Metrics
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithRegistry sets the backend registry. The default is DefaultRegistry().
func WithRegistry(r *Registry) DirectoryOption {
	return func(d *Directory) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithSettings sets the settings consulted for backend settings and TTLs.
func WithSettings(s Settings) DirectoryOption {
	return func(d *Directory) {
		if s != nil {
			d.settings = s
		}
	}
}

// WithClock sets the clock used for expirations.
func WithClock(c clock.Clock) DirectoryOption {
	return func(d *Directory) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithMetrics enables operation metrics.
func WithMetrics(m *Metrics) DirectoryOption {
	return func(d *Directory) {
		d.metrics = m
	}
}

// NewDirectory returns an empty directory.
func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{
		routers:  make(map[string]*Router),
		registry: DefaultRegistry(),
		settings: MapSettings{},
		clock:    clock.WallClock,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var (
	defaultDirectory     *Directory
	defaultDirectoryOnce sync.Once
)

// Default returns the process-wide directory.
func Default() *Directory {
	defaultDirectoryOnce.Do(func() {
		defaultDirectory = NewDirectory()
	})
	return defaultDirectory
}

// New creates a router in the process-wide directory.
func New(name string, model Model, opts ...Option) (*Router, error) {
	return Default().New(name, model, opts...)
}

// New creates and registers a router. The router is visible in the directory
// before its options are applied, so backend factories run by option
// validation can find it; if an option fails the router is removed again.
func (d *Directory) New(name string, model Model, opts ...Option) (*Router, error) {
	rn := naming.Normalize(name)
	if rn == "" {
		return nil, configErrorf("", "router created without a name")
	}

	r := newRouter(d, rn, model)

	d.mu.Lock()
	if _, exists := d.routers[rn]; exists {
		d.mu.Unlock()
		return nil, errors.AlreadyExistsf("router %q", rn)
	}
	d.routers[rn] = r
	d.mu.Unlock()

	for _, opt := range opts {
		if err := opt(r); err != nil {
			d.mu.Lock()
			if d.routers[rn] == r {
				delete(d.routers, rn)
			}
			d.mu.Unlock()
			return nil, err
		}
	}
	logger.Debugf("created router %s", rn)
	return r, nil
}

// Instance returns the router registered under name, nil if none.
func (d *Directory) Instance(name string) *Router {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.routers[naming.Normalize(name)]
}

// Instances returns the sorted names of all registered routers.
func (d *Directory) Instances() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.routers))
	for name := range d.routers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns the model of the named router, nil if the router is unknown.
func (d *Directory) Model(name string) Model {
	if r := d.Instance(name); r != nil {
		return r.Model()
	}
	return nil
}

// Delete forgets the named router.
func (d *Directory) Delete(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.routers, naming.Normalize(name))
}

// ResetBackends clears the backend instances of every router, forcing them to
// be rebuilt on next use.
func (d *Directory) ResetBackends() {
	d.mu.RLock()
	routers := make([]*Router, 0, len(d.routers))
	for _, r := range d.routers {
		routers = append(routers, r)
	}
	d.mu.RUnlock()

	for _, r := range routers {
		r.ClearBackends()
	}
}

// Registry returns the backend registry.
func (d *Directory) Registry() *Registry { return d.registry }

// Settings returns the shared settings.
func (d *Directory) Settings() Settings { return d.settings }

// Clock returns the shared clock.
func (d *Directory) Clock() clock.Clock { return d.clock }

// Metrics returns the operation metrics, nil when disabled.
func (d *Directory) Metrics() *Metrics { return d.metrics }
