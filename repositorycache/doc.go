// Package repositorycache is the in-process cache backend for routers.
//
// It stores router values in a cache.CacheService, sturdyc backed by default,
// under "router::key" keys. Register it for the routers that should cache and
// point their cache type at it:
//
//	svc, _ := cache.NewCacheService(cache.DefaultConfig())
//	_ = repositorycache.Register(registry, svc, nil, "node", "catalog")
//	r, _ := dir.New("node", model,
//		router.WithBackendType("yaml"),
//		router.WithCacheType(repositorycache.TypeName))
//
// Values are stored msgpack encoded and decoded into a new model instance on
// every read. They are returned including expired ones: the router decides
// freshness from the expiration carried by each value, which is what lets
// Router.Expire mark an entry stale without dropping it.
package repositorycache
