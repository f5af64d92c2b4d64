package repositorycache

import (
	"context"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/ryanuber/go-glob"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-router/cache"
	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the cache registers under.
const TypeName = "sturdy_cache"

var logger = loggo.GetLogger("router.repositorycache")

// Interface assertions
var (
	_ router.Finder    = (*Backend)(nil)
	_ router.Searcher  = (*Backend)(nil)
	_ router.Saver     = (*Backend)(nil)
	_ router.Destroyer = (*Backend)(nil)
)

// Backend keeps msgpack encoded copies of router values in a CacheService.
// Every router gets its own key namespace, so one service can back all
// routers of a process. Values are decoded into fresh model instances, so
// callers never share a pointer with the cache or with the primary backend.
type Backend struct {
	routerName    string
	model         router.Model
	cache         cache.CacheService
	keySerializer cache.KeySerializer
}

// New creates a cache backend for routerName decoding values into model.
func New(routerName string, model router.Model, cacheService cache.CacheService, keySerializer cache.KeySerializer) *Backend {
	if keySerializer == nil {
		keySerializer = cache.NewDefaultKeySerializer()
	}
	return &Backend{
		routerName:    routerName,
		model:         model,
		cache:         cacheService,
		keySerializer: keySerializer,
	}
}

// Factory builds a Backend bound to the router it is created for.
func Factory(cacheService cache.CacheService, keySerializer cache.KeySerializer) router.Factory {
	return func(r *router.Router) (router.Backend, error) {
		if cacheService == nil {
			return nil, errors.NotValidf("nil cache service for router %q", r.Name())
		}
		if r.Model() == nil {
			return nil, errors.NotValidf("nil model for router %q", r.Name())
		}
		return New(r.Name(), r.Model(), cacheService, keySerializer), nil
	}
}

// Register adds the cache backend for every named router to reg.
func Register(reg *router.Registry, cacheService cache.CacheService, keySerializer cache.KeySerializer, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory(cacheService, keySerializer)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) key(k string) string {
	return b.keySerializer.SerializeKey(b.routerName, k)
}

// Find returns a copy of the cached value for the request key, expired or not.
func (b *Backend) Find(ctx context.Context, req *router.Request) (router.Instance, error) {
	return b.load(ctx, b.key(req.Key()), req.Key())
}

func (b *Backend) load(ctx context.Context, cacheKey, key string) (router.Instance, error) {
	data, ok, err := cache.Get[[]byte](ctx, b.cache, cacheKey)
	if err != nil || !ok || data == nil {
		return nil, err
	}
	instance := b.model.NewInstance(key)
	if err := msgpack.Unmarshal(data, instance); err != nil {
		return nil, errors.Annotatef(err, "decoding %s", cacheKey)
	}
	return instance, nil
}

// Search returns every cached value whose key matches the request key glob.
func (b *Backend) Search(ctx context.Context, req *router.Request) ([]router.Instance, error) {
	prefix := b.keySerializer.NamespacePrefix(b.routerName)
	keys, err := b.cache.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	pattern := req.Key()
	if pattern == "" {
		pattern = "*"
	}
	results := []router.Instance{}
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		if !glob.Glob(pattern, name) {
			continue
		}
		instance, err := b.load(ctx, key, name)
		if err != nil {
			return nil, err
		}
		if instance != nil {
			results = append(results, instance)
		}
	}
	return results, nil
}

// Save stores an encoded copy of the request instance under its name. Later
// changes to the instance do not reach the cache.
func (b *Backend) Save(ctx context.Context, req *router.Request) (any, error) {
	instance := req.Instance()
	if instance == nil {
		return nil, errors.NotValidf("save without instance for %s", req)
	}
	data, err := msgpack.Marshal(instance)
	if err != nil {
		return nil, errors.Annotatef(err, "encoding %s", req)
	}
	if err := b.cache.Set(ctx, b.key(req.Key()), data); err != nil {
		return nil, err
	}
	logger.Tracef("cached %s", req)
	return instance, nil
}

// Destroy drops the cached value for the request key.
func (b *Backend) Destroy(ctx context.Context, req *router.Request) (any, error) {
	return nil, b.cache.Delete(ctx, b.key(req.Key()))
}

// Clear drops every cached value of the router.
func (b *Backend) Clear(ctx context.Context) error {
	return b.cache.DeleteByPrefix(ctx, b.keySerializer.NamespacePrefix(b.routerName))
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return "Keeps encoded copies of values in the in-process sturdyc cache."
}
