package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-router/internal/naming"
)

var logger = loggo.GetLogger("router")

const (
	// DefaultTTL applies when the runinterval setting is missing or invalid.
	DefaultTTL = 30 * time.Minute

	// SettingRunInterval names the setting, in seconds, used as default TTL.
	SettingRunInterval = "runinterval"

	// expireBackdate is how far in the past Expire moves an expiration.
	expireBackdate = 60 * time.Second
)

// Settings is the read side of the configuration consulted by routers: the
// backend setting, the run interval and the executable name.
type Settings interface {
	Value(name string) (string, bool)
}

// MapSettings is a fixed Settings implementation, handy in tests.
type MapSettings map[string]string

// Value returns the named setting.
func (m MapSettings) Value(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Router dispatches find, search, save, destroy and expire for one model to a
// backend chosen by type name, optionally keeping a cache backend in front of
// it. Routers are created through a Directory and live for the process.
type Router struct {
	name  string
	model Model
	dir   *Directory

	mu             sync.RWMutex
	backendType    string
	backendSetting string
	cacheType      string
	ttl            time.Duration
	selector       Selector
	doc            string

	// backends holds one instance per backend type for the router's lifetime.
	backends *xsync.MapOf[string, Backend]
}

// Option configures a router at creation time.
type Option func(*Router) error

// WithBackendType fixes the primary backend type. It is validated against the
// registry immediately.
func WithBackendType(typeName string) Option {
	return func(r *Router) error {
		return r.SetBackendType(typeName)
	}
}

// WithBackendSetting names the setting that selects the primary backend type
// on first use.
func WithBackendSetting(setting string) Option {
	return func(r *Router) error {
		if strings.TrimSpace(setting) == "" {
			return errors.NotValidf("empty backend setting for router %q", r.name)
		}
		r.mu.Lock()
		r.backendSetting = setting
		r.mu.Unlock()
		return nil
	}
}

// WithCacheType enables caching through the given backend type.
func WithCacheType(typeName string) Option {
	return func(r *Router) error {
		return r.SetCacheType(typeName)
	}
}

// WithTTL overrides the run interval derived TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Router) error {
		return r.SetTTL(ttl)
	}
}

// WithSelector installs a per-request backend selection hook.
func WithSelector(s Selector) Option {
	return func(r *Router) error {
		r.mu.Lock()
		r.selector = s
		r.mu.Unlock()
		return nil
	}
}

// WithDoc attaches a description used in reference output.
func WithDoc(doc string) Option {
	return func(r *Router) error {
		r.mu.Lock()
		r.doc = doc
		r.mu.Unlock()
		return nil
	}
}

func newRouter(dir *Directory, name string, model Model) *Router {
	return &Router{
		name:     name,
		model:    model,
		dir:      dir,
		backends: xsync.NewMapOf[string, Backend](),
	}
}

// Name returns the router name.
func (r *Router) Name() string { return r.name }

// Model returns the model the router was created for; it may be nil.
func (r *Router) Model() Model { return r.model }

// Directory returns the directory the router is registered in.
func (r *Router) Directory() *Directory { return r.dir }

// Doc describes the router for reference output.
func (r *Router) Doc() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	if r.doc != "" {
		b.WriteString(strings.TrimSpace(r.doc))
		b.WriteString("\n\n")
	}
	if r.backendSetting != "" {
		fmt.Fprintf(&b, "* **Backend Setting**: %s", r.backendSetting)
	}
	return b.String()
}

// BackendSetting returns the setting name used to pick the backend type.
func (r *Router) BackendSetting() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backendSetting
}

// BackendType returns the primary backend type, resolving it from the backend
// setting on first use. Without a type or setting it fails with a
// configuration error; an unknown type resolved from settings is NotValid.
func (r *Router) BackendType() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.backendType != "" {
		return r.backendType, nil
	}
	if r.backendSetting == "" {
		return "", configErrorf(r.name, "no backend type nor backend setting was provided")
	}
	value, ok := r.dir.settings.Value(r.backendSetting)
	if !ok || strings.TrimSpace(value) == "" {
		return "", configErrorf(r.name, "setting %q does not name a backend", r.backendSetting)
	}
	typeName, err := r.validateBackendType(value)
	if err != nil {
		return "", err
	}
	r.backendType = typeName
	return typeName, nil
}

// SetBackendType fixes the primary backend type after validating it.
func (r *Router) SetBackendType(typeName string) error {
	tn, err := r.validateBackendType(typeName)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.backendType = tn
	r.mu.Unlock()
	return nil
}

// CacheType returns the cache backend type, "" when caching is disabled.
func (r *Router) CacheType() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cacheType
}

// SetCacheType enables caching through typeName; "" disables caching.
func (r *Router) SetCacheType(typeName string) error {
	tn := ""
	if strings.TrimSpace(typeName) != "" {
		var err error
		if tn, err = r.validateBackendType(typeName); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.cacheType = tn
	r.mu.Unlock()
	return nil
}

// Caching reports whether a cache backend is configured.
func (r *Router) Caching() bool {
	return r.CacheType() != ""
}

// Cache returns the cache backend instance.
func (r *Router) Cache() (Backend, error) {
	cacheType := r.CacheType()
	if cacheType == "" {
		return nil, configErrorf(r.name, "tried to cache when no cache type was set")
	}
	return r.Backend(cacheType)
}

// TTL returns the lifespan applied to values without an expiration. It
// defaults to the runinterval setting.
func (r *Router) TTL() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ttl == 0 {
		r.ttl = r.defaultTTL()
	}
	return r.ttl
}

func (r *Router) defaultTTL() time.Duration {
	value, ok := r.dir.settings.Value(SettingRunInterval)
	if !ok {
		return DefaultTTL
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		logger.Warningf("invalid %s setting %q; using %s for %s", SettingRunInterval, value, DefaultTTL, r.name)
		return DefaultTTL
	}
	return time.Duration(seconds) * time.Second
}

// SetTTL overrides the lifespan of returned values.
func (r *Router) SetTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return errors.NotValidf("TTL %s for router %q", ttl, r.name)
	}
	r.mu.Lock()
	r.ttl = ttl
	r.mu.Unlock()
	return nil
}

// Expiration is the expiration stamped on values that come back without one.
func (r *Router) Expiration() time.Time {
	return r.dir.clock.Now().Add(r.TTL())
}

// DefaultRoute describes the router's own backend and cache choice, used by
// route tables when no static route matches. It is nil when the router has
// neither.
func (r *Router) DefaultRoute() *Route {
	backend, err := r.BackendType()
	if err != nil {
		backend = ""
	}
	cache := r.CacheType()
	if backend == "" && cache == "" {
		return nil
	}
	return &Route{Router: r.name, Backend: backend, Cache: cache}
}

// Backend returns the instance for typeName, building it on first use. At
// most one instance per type exists until ClearBackends. Factories must not
// call Backend on the same router.
func (r *Router) Backend(typeName string) (Backend, error) {
	tn := naming.Normalize(typeName)
	if tn == "" {
		return nil, configErrorf(r.name, "no backend specified; cannot redirect")
	}
	if b, ok := r.backends.Load(tn); ok {
		return b, nil
	}

	var buildErr error
	b, ok := r.backends.Compute(tn, func(old Backend, loaded bool) (Backend, bool) {
		if loaded {
			return old, false
		}
		built, err := r.makeBackend(tn)
		if err != nil {
			buildErr = err
			return nil, true
		}
		return built, false
	})
	if buildErr != nil {
		return nil, buildErr
	}
	if !ok {
		return nil, errors.NotFoundf("backend %q for router %q", tn, r.name)
	}
	return b, nil
}

// ClearBackends drops every cached backend instance.
func (r *Router) ClearBackends() {
	r.backends.Clear()
}

func (r *Router) makeBackend(typeName string) (Backend, error) {
	factory, ok := r.dir.registry.Lookup(r.name, typeName)
	if !ok {
		return nil, errors.NewNotValid(nil, fmt.Sprintf("could not find backend %s for router %s", typeName, r.name))
	}
	b, err := factory(r)
	if err != nil {
		return nil, errors.Annotatef(err, "building %s backend for router %s", typeName, r.name)
	}
	if b == nil {
		return nil, configErrorf(r.name, "backend factory %q returned nil", typeName)
	}
	return b, nil
}

func (r *Router) validateBackendType(typeName string) (string, error) {
	tn := naming.Normalize(typeName)
	if tn == "" {
		return "", errors.NewNotValid(nil, fmt.Sprintf("invalid backend name %q", typeName))
	}
	if _, ok := r.dir.registry.Lookup(r.name, tn); !ok {
		return "", errors.NewNotValid(nil, fmt.Sprintf("could not find backend %s for router %s", tn, r.name))
	}
	return tn, nil
}

func (r *Router) currentSelector() Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selector
}

// Request builds a request addressed to this router.
func (r *Router) Request(method Operation, key string, opts ...RequestOption) (*Request, error) {
	return NewRequest(r.name, method, key, opts...)
}

// Find returns the value for key, consulting the cache first when one is
// configured. It returns nil without error when nothing is found.
func (r *Router) Find(ctx context.Context, key string, opts ...RequestOption) (_ Instance, err error) {
	defer func() { r.dir.metrics.observe(r.name, OpFind, err) }()

	req, err := r.Request(OpFind, key, opts...)
	if err != nil {
		return nil, err
	}
	backend, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if cached := r.findInCache(ctx, req); cached != nil {
		return cached, nil
	}

	if req.IgnoreBackend() {
		return nil, nil
	}

	finder, ok := backend.(Finder)
	if !ok {
		return nil, r.notSupported(OpFind, backend)
	}
	result, err := finder.Find(ctx, req)
	if err != nil {
		return nil, err
	}
	if isNil(result) {
		return nil, nil
	}

	if result.Expiration().IsZero() {
		result.SetExpiration(r.Expiration())
	}

	if r.Caching() {
		logger.Infof("caching %s for %s", r.name, req.Key())
		if err := r.saveToCache(ctx, result, opts...); err != nil {
			return nil, err
		}
	}

	if f, ok := backend.(Filterer); ok {
		return f.Filter(ctx, result)
	}
	return result, nil
}

// findInCache returns a fresh cached value or nil. Cache failures are logged
// and treated as a miss.
func (r *Router) findInCache(ctx context.Context, req *Request) Instance {
	if !r.Caching() || req.IgnoreCache() {
		return nil
	}

	res := r.lookupCache(ctx, req)
	r.dir.metrics.cacheLookup(r.name, res.status)

	switch res.status {
	case cacheFound:
		logger.Debugf("using cached %s for %s", r.name, req.Key())
		return res.instance
	case cacheExpired:
		logger.Infof("not using expired %s for %s from cache; expired at %s",
			r.name, req.Key(), res.instance.Expiration().Format(time.RFC3339))
	case cacheFailed:
		logger.Errorf("cached %s for %s failed: %v", r.name, req.Key(), res.err)
	}
	return nil
}

// Search returns every value matching key from the primary backend. The cache
// is never consulted.
func (r *Router) Search(ctx context.Context, key string, opts ...RequestOption) (_ []Instance, err error) {
	defer func() { r.dir.metrics.observe(r.name, OpSearch, err) }()

	req, err := r.Request(OpSearch, key, opts...)
	if err != nil {
		return nil, err
	}
	backend, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	searcher, ok := backend.(Searcher)
	if !ok {
		return nil, r.notSupported(OpSearch, backend)
	}

	results, err := searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if results == nil {
		return nil, nil
	}
	for _, instance := range results {
		if isNil(instance) {
			return nil, configErrorf(r.name, "search results from backend contain a nil instance")
		}
		if instance.Expiration().IsZero() {
			instance.SetExpiration(r.Expiration())
		}
	}
	return results, nil
}

// Save stores instance in the primary backend and, once that succeeded, in
// the cache. The primary backend's result is returned.
func (r *Router) Save(ctx context.Context, instance Instance, opts ...RequestOption) (_ any, err error) {
	defer func() { r.dir.metrics.observe(r.name, OpSave, err) }()

	req, err := NewSaveRequest(r.name, instance, opts...)
	if err != nil {
		return nil, err
	}
	backend, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	saver, ok := backend.(Saver)
	if !ok {
		return nil, r.notSupported(OpSave, backend)
	}

	result, err := saver.Save(ctx, req)
	if err != nil {
		return nil, err
	}

	if r.Caching() {
		if err := r.saveToCache(ctx, instance, opts...); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Destroy removes key from the primary backend and, once that succeeded, from
// the cache when the cache holds it.
func (r *Router) Destroy(ctx context.Context, key string, opts ...RequestOption) (_ any, err error) {
	defer func() { r.dir.metrics.observe(r.name, OpDestroy, err) }()

	req, err := r.Request(OpDestroy, key, opts...)
	if err != nil {
		return nil, err
	}
	backend, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	destroyer, ok := backend.(Destroyer)
	if !ok {
		return nil, r.notSupported(OpDestroy, backend)
	}

	result, err := destroyer.Destroy(ctx, req)
	if err != nil {
		return nil, err
	}

	if !r.Caching() {
		return result, nil
	}

	findReq, err := r.Request(OpFind, key, opts...)
	if err != nil {
		return result, err
	}
	res := r.lookupCache(ctx, findReq)
	switch res.status {
	case cacheMiss:
		return result, nil
	case cacheFailed:
		logger.Errorf("cached %s for %s failed during destroy: %v", r.name, key, res.err)
		return result, nil
	}

	cache, err := r.Cache()
	if err != nil {
		return result, err
	}
	cacheDestroyer, ok := cache.(Destroyer)
	if !ok {
		return result, r.notSupported(OpDestroy, cache)
	}
	if _, err := cacheDestroyer.Destroy(ctx, req); err != nil {
		return result, err
	}
	return result, nil
}

// Expire marks the cached value for key as stale without removing it, so a
// later Find goes back to the primary backend while the last known value
// stays readable from the cache.
func (r *Router) Expire(ctx context.Context, key string, opts ...RequestOption) (err error) {
	defer func() { r.dir.metrics.observe(r.name, OpExpire, err) }()

	if _, err := r.Request(OpExpire, key, opts...); err != nil {
		return err
	}
	if !r.Caching() {
		return nil
	}

	findReq, err := r.Request(OpFind, key, opts...)
	if err != nil {
		return err
	}
	res := r.lookupCache(ctx, findReq)
	switch res.status {
	case cacheMiss:
		return nil
	case cacheFailed:
		logger.Errorf("cached %s for %s failed during expire: %v", r.name, key, res.err)
		return nil
	}

	instance := res.instance
	logger.Infof("expiring the %s cache of %s", r.name, instance.Name())
	instance.SetExpiration(r.dir.clock.Now().Add(-expireBackdate))
	return r.saveToCache(ctx, instance, opts...)
}

func (r *Router) saveToCache(ctx context.Context, instance Instance, opts ...RequestOption) error {
	cache, err := r.Cache()
	if err != nil {
		return err
	}
	saver, ok := cache.(Saver)
	if !ok {
		return r.notSupported(OpSave, cache)
	}
	req, err := NewSaveRequest(r.name, instance, opts...)
	if err != nil {
		return err
	}
	_, err = saver.Save(ctx, req)
	return err
}

// cacheStatus is the outcome of a raw cache lookup.
type cacheStatus int

const (
	cacheMiss cacheStatus = iota
	cacheFound
	cacheExpired
	cacheFailed
)

func (s cacheStatus) String() string {
	switch s {
	case cacheFound:
		return "hit"
	case cacheExpired:
		return "expired"
	case cacheFailed:
		return "error"
	}
	return "miss"
}

type cacheLookup struct {
	status   cacheStatus
	instance Instance
	err      error
}

// lookupCache reads req.Key() from the cache backend. Failures are reported
// in the result rather than returned, so callers decide how to fail open.
func (r *Router) lookupCache(ctx context.Context, req *Request) cacheLookup {
	cache, err := r.Cache()
	if err != nil {
		return cacheLookup{status: cacheFailed, err: err}
	}
	finder, ok := cache.(Finder)
	if !ok {
		return cacheLookup{status: cacheFailed, err: r.notSupported(OpFind, cache)}
	}

	instance, err := r.safeFind(ctx, finder, req)
	switch {
	case err != nil:
		return cacheLookup{status: cacheFailed, err: err}
	case isNil(instance):
		return cacheLookup{status: cacheMiss}
	case instance.Expired(r.dir.clock.Now()):
		return cacheLookup{status: cacheExpired, instance: instance}
	}
	return cacheLookup{status: cacheFound, instance: instance}
}

// safeFind turns a panicking cache backend into an error so a broken cache
// never takes down a read.
func (r *Router) safeFind(ctx context.Context, finder Finder, req *Request) (instance Instance, err error) {
	defer func() {
		if p := recover(); p != nil {
			instance, err = nil, errors.Errorf("cache backend panicked: %v", p)
		}
	}()
	return finder.Find(ctx, req)
}

// prepare picks the backend for req and checks authorization.
func (r *Router) prepare(ctx context.Context, req *Request) (Backend, error) {
	var typeName string
	if sel := r.currentSelector(); sel != nil {
		name, err := sel.SelectBackend(ctx, req)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(name) == "" {
			return nil, errors.NewNotValid(nil, fmt.Sprintf("could not determine appropriate backend for %s", req))
		}
		typeName = name
	} else {
		var err error
		if typeName, err = r.BackendType(); err != nil {
			return nil, err
		}
	}

	backend, err := r.Backend(typeName)
	if err != nil {
		return nil, err
	}
	if err := r.checkAuthorization(ctx, req, backend); err != nil {
		return nil, err
	}
	return backend, nil
}

// checkAuthorization only applies to requests carrying a node, and only to
// backends that implement Authorizer.
func (r *Router) checkAuthorization(ctx context.Context, req *Request, backend Backend) error {
	if req.Node() == "" {
		return nil
	}
	authorizer, ok := backend.(Authorizer)
	if !ok {
		return nil
	}
	if authorizer.Authorized(ctx, req) {
		return nil
	}

	msg := fmt.Sprintf("not authorized to call %s on %s", req.Method(), req)
	if len(req.options) > 0 {
		msg += " with " + describeOptions(req.options)
	}
	return errors.NewUnauthorized(nil, msg)
}

func (r *Router) notSupported(op Operation, backend Backend) error {
	return errors.NotSupportedf("%s on %T backend for router %q", op, backend, r.name)
}
