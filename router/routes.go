package router

import (
	"io"
	"sort"
	"sync"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-repository-router/internal/naming"
)

// SettingName is the setting holding the running executable's name, which
// route tables match against.
const SettingName = "name"

// Route is a static choice of backend and cache type for a router, optionally
// restricted to one executable.
type Route struct {
	Router     string `yaml:"-"`
	Executable string `yaml:"for,omitempty"`
	Backend    string `yaml:"to,omitempty"`
	Cache      string `yaml:"in,omitempty"`
}

// RouteSpec carries the arguments of RouteTable.Route and RouteTable.Cache.
// An empty For matches every executable.
type RouteSpec struct {
	For string `yaml:"for"`
	To  string `yaml:"to"`
	In  string `yaml:"in"`
}

// RouteTable holds static routes. Lookups fall back to the router's own
// DefaultRoute when no static route matches.
type RouteTable struct {
	mu     sync.RWMutex
	routes []Route
	dir    *Directory
}

// NewRouteTable returns an empty table resolving routers and the executable
// name through dir.
func NewRouteTable(dir *Directory) *RouteTable {
	if dir == nil {
		dir = Default()
	}
	return &RouteTable{dir: dir}
}

var (
	defaultRoutes     *RouteTable
	defaultRoutesOnce sync.Once
)

// DefaultRoutes returns the process-wide route table, bound to Default().
func DefaultRoutes() *RouteTable {
	defaultRoutesOnce.Do(func() {
		defaultRoutes = NewRouteTable(Default())
	})
	return defaultRoutes
}

// Route records the primary backend for routerName. spec.To is required.
func (t *RouteTable) Route(routerName string, spec RouteSpec) error {
	if naming.Normalize(spec.To) == "" {
		return errors.NewNotValid(nil, "you must specify 'to' to configure the default backend")
	}
	return t.add(routerName, spec)
}

// Cache records the cache backend for routerName. spec.In is required.
func (t *RouteTable) Cache(routerName string, spec RouteSpec) error {
	if naming.Normalize(spec.In) == "" {
		return errors.NewNotValid(nil, "you must specify 'in' to configure the cache backend")
	}
	return t.add(routerName, spec)
}

func (t *RouteTable) add(routerName string, spec RouteSpec) error {
	rn := naming.Normalize(routerName)
	if rn == "" {
		return errors.NewNotValid(nil, "route without a router name")
	}
	route := Route{
		Router:     rn,
		Executable: naming.Normalize(spec.For),
		Backend:    naming.Normalize(spec.To),
		Cache:      naming.Normalize(spec.In),
	}
	t.mu.Lock()
	t.routes = append(t.routes, route)
	t.mu.Unlock()
	return nil
}

// Backend returns the primary backend type routed for routerName, "" when
// neither a static route nor the router's default route names one.
func (t *RouteTable) Backend(routerName string) string {
	return t.lookup(routerName, func(r *Route) string { return r.Backend })
}

// CacheBackend returns the cache backend type routed for routerName, "" when
// none is configured.
func (t *RouteTable) CacheBackend(routerName string) string {
	return t.lookup(routerName, func(r *Route) string { return r.Cache })
}

// lookup returns field of the first route matching the router and the
// current executable that sets it.
func (t *RouteTable) lookup(routerName string, field func(*Route) string) string {
	rn := naming.Normalize(routerName)
	program := ""
	if v, ok := t.dir.Settings().Value(SettingName); ok {
		program = naming.Normalize(v)
	}

	t.mu.RLock()
	for i := range t.routes {
		route := &t.routes[i]
		if route.Router != rn {
			continue
		}
		if route.Executable != "" && route.Executable != program {
			continue
		}
		if v := field(route); v != "" {
			t.mu.RUnlock()
			return v
		}
	}
	t.mu.RUnlock()

	r := t.dir.Instance(rn)
	if r == nil {
		return ""
	}
	if def := r.DefaultRoute(); def != nil {
		return field(def)
	}
	return ""
}

// Routes returns a copy of the static routes in insertion order.
func (t *RouteTable) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Apply pushes the routed backend and cache types into every router of the
// table's directory. Routers without a route keep their configuration.
func (t *RouteTable) Apply() error {
	for _, name := range t.dir.Instances() {
		r := t.dir.Instance(name)
		if r == nil {
			continue
		}
		if backend := t.Backend(name); backend != "" {
			if err := r.SetBackendType(backend); err != nil {
				return errors.Annotatef(err, "routing %s", name)
			}
		}
		if cache := t.CacheBackend(name); cache != "" {
			if err := r.SetCacheType(cache); err != nil {
				return errors.Annotatef(err, "routing %s cache", name)
			}
		}
		logger.Debugf("routed %s to backend %q cache %q", name, r.backendTypeOrEmpty(), r.CacheType())
	}
	return nil
}

type routeFile struct {
	Routes map[string]RouteSpec `yaml:"routes"`
}

// LoadRoutes reads a YAML route file of the form
//
//	routes:
//	  catalog: {for: agent, to: memory, in: yaml}
//
// and adds every entry to the table. An entry needs at least one of to or in.
func (t *RouteTable) LoadRoutes(r io.Reader) error {
	var file routeFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return nil
		}
		return errors.Annotate(err, "decoding routes")
	}
	return t.AddRoutes(file.Routes)
}

// AddRoutes adds one route per entry of routes.
func (t *RouteTable) AddRoutes(routes map[string]RouteSpec) error {
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := routes[name]
		if spec.To == "" && spec.In == "" {
			return errors.NotValidf("route for %q without 'to' or 'in'", name)
		}
		if spec.To != "" {
			if err := t.Route(name, RouteSpec{For: spec.For, To: spec.To}); err != nil {
				return err
			}
		}
		if spec.In != "" {
			if err := t.Cache(name, RouteSpec{For: spec.For, In: spec.In}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Router) backendTypeOrEmpty() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backendType
}
