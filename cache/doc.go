// Package cache defines the storage contract used by cache backends and the
// default sturdyc backed implementation.
//
// # Overview
//
//   - CacheService: get, set, delete and prefix scans over arbitrary values
//   - KeySerializer: builds "namespace::key" style keys so one service can
//     hold entries for many routers
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	keys := cache.NewDefaultKeySerializer()
//
//	key := keys.SerializeKey("node", "web01.example.com")
//	_ = svc.Set(ctx, key, node)
//	node, ok, err := cache.Get[*Node](ctx, svc, key)
//
// The sturdyc TTL bounds how long entries are kept in memory. Values that
// carry their own expiration are still returned once that expiration has
// passed; deciding whether a value is fresh is up to the caller.
package cache
