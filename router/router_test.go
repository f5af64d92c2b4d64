package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
)

func TestDirectoryRejectsDuplicateNames(t *testing.T) {
	env := newTestEnv(t, nil)

	first, err := env.dir.New("node", testModel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = env.dir.New("Node", testModel)
	if !errors.Is(err, errors.AlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if got := env.dir.Instance("node"); got != first {
		t.Fatalf("original router not retrievable")
	}
}

func TestDirectoryRemovesRouterWhenOptionFails(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.dir.New("node", testModel, WithBackendType("missing"))
	if !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected NotValid, got %v", err)
	}
	if env.dir.Instance("node") != nil {
		t.Fatal("router should not stay registered")
	}
	if _, err := env.dir.New("node", testModel); err != nil {
		t.Fatalf("name should be reusable: %v", err)
	}
}

func TestDirectoryLookups(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.dir.New("FileMetadata", testModel); err != nil {
		t.Fatal(err)
	}
	if _, err := env.dir.New("catalog", nil); err != nil {
		t.Fatal(err)
	}

	if got := env.dir.Instances(); strings.Join(got, ",") != "catalog,file_metadata" {
		t.Fatalf("unexpected instances %v", got)
	}
	if env.dir.Model("file_metadata") == nil {
		t.Fatal("expected model")
	}
	if env.dir.Model("unknown") != nil {
		t.Fatal("expected nil model for unknown router")
	}
	env.dir.Delete("catalog")
	if env.dir.Instance("catalog") != nil {
		t.Fatal("catalog should be deleted")
	}
}

func TestBackendInstanceIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	builds := map[string]int{}
	var mu sync.Mutex
	for _, name := range []string{"one", "two"} {
		name := name
		err := env.registry.Register("node", name, func(*Router) (Backend, error) {
			mu.Lock()
			builds[name]++
			mu.Unlock()
			return &mockBackend{}, nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	r, err := env.dir.New("node", testModel)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]Backend, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := r.Backend("one")
			if err != nil {
				t.Error(err)
			}
			results[i] = b
		}(i)
	}
	wg.Wait()

	for _, b := range results {
		if b != results[0] {
			t.Fatal("expected the same instance for every call")
		}
	}
	two, err := r.Backend("Two")
	if err != nil {
		t.Fatal(err)
	}
	if two == results[0] {
		t.Fatal("different types must yield different instances")
	}
	if builds["one"] != 1 || builds["two"] != 1 {
		t.Fatalf("expected one build per type, got %v", builds)
	}

	env.dir.ResetBackends()
	again, err := r.Backend("one")
	if err != nil {
		t.Fatal(err)
	}
	if again == results[0] || builds["one"] != 2 {
		t.Fatal("reset should force a rebuild")
	}
}

func TestBackendFactoryError(t *testing.T) {
	env := newTestEnv(t, nil)
	boom := errors.New("no connection")
	_ = env.registry.Register("node", "broken", func(*Router) (Backend, error) { return nil, boom })
	r, _ := env.dir.New("node", testModel)

	if _, err := r.Backend("broken"); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
	if _, err := r.Backend(""); !IsConfigError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBackendTypeResolution(t *testing.T) {
	t.Run("no type nor setting", func(t *testing.T) {
		env := newTestEnv(t, nil)
		r, _ := env.dir.New("node", testModel)
		if _, err := r.BackendType(); !IsConfigError(err) {
			t.Fatalf("expected configuration error, got %v", err)
		}
		if _, err := r.Find(context.Background(), "me"); !IsConfigError(err) {
			t.Fatalf("find should fail with configuration error, got %v", err)
		}
	})

	t.Run("resolved from setting", func(t *testing.T) {
		env := newTestEnv(t, MapSettings{"node_terminus": "MemoryStore"})
		env.register(t, "node", "memory_store", &mockBackend{})
		r, err := env.dir.New("node", testModel, WithBackendSetting("node_terminus"))
		if err != nil {
			t.Fatal(err)
		}
		got, err := r.BackendType()
		if err != nil || got != "memory_store" {
			t.Fatalf("expected memory_store, got %q %v", got, err)
		}
	})

	t.Run("setting names unknown type", func(t *testing.T) {
		env := newTestEnv(t, MapSettings{"node_terminus": "ldap"})
		r, _ := env.dir.New("node", testModel, WithBackendSetting("node_terminus"))
		if _, err := r.BackendType(); !errors.Is(err, errors.NotValid) {
			t.Fatalf("expected NotValid, got %v", err)
		}
	})

	t.Run("explicit type validated", func(t *testing.T) {
		env := newTestEnv(t, nil)
		r, _ := env.dir.New("node", testModel)
		if err := r.SetBackendType("nope"); !errors.Is(err, errors.NotValid) {
			t.Fatalf("expected NotValid, got %v", err)
		}
		if err := r.SetCacheType("nope"); !errors.Is(err, errors.NotValid) {
			t.Fatalf("expected NotValid, got %v", err)
		}
	})
}

func TestTTL(t *testing.T) {
	env := newTestEnv(t, MapSettings{SettingRunInterval: "60"})
	r, _ := env.dir.New("node", testModel)
	if got := r.TTL(); got != time.Minute {
		t.Fatalf("expected 1m, got %s", got)
	}
	if got := r.Expiration(); !got.Equal(testNow.Add(time.Minute)) {
		t.Fatalf("unexpected expiration %s", got)
	}
	if err := r.SetTTL(0); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected NotValid, got %v", err)
	}

	env2 := newTestEnv(t, nil)
	r2, _ := env2.dir.New("node", testModel)
	if got := r2.TTL(); got != DefaultTTL {
		t.Fatalf("expected default TTL, got %s", got)
	}
}

func TestFindReturnsCachedValueWithoutPrimary(t *testing.T) {
	env := newTestEnv(t, nil)
	primary := &mockBackend{findResult: newTestInstance("me", "primary")}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)

	cached := newTestInstance("me", "cached")
	cached.SetExpiration(testNow.Add(time.Hour))
	cache.put(cached)

	got, err := r.Find(context.Background(), "me")
	if err != nil {
		t.Fatal(err)
	}
	if got != Instance(cached) {
		t.Fatalf("expected cached instance, got %#v", got)
	}
	if n := len(primary.getCalls()); n != 0 {
		t.Fatalf("primary must not be consulted, got %d calls", n)
	}
}

func TestFindFallsThroughExpiredCacheEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	fresh := newTestInstance("me", "fresh")
	primary := &mockBackend{findResult: fresh}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)

	stale := newTestInstance("me", "stale")
	stale.SetExpiration(testNow.Add(-time.Second))
	cache.put(stale)

	got, err := r.Find(context.Background(), "me")
	if err != nil {
		t.Fatal(err)
	}
	if got != Instance(fresh) {
		t.Fatalf("expected fresh instance, got %#v", got)
	}
	if primary.count(OpFind) != 1 {
		t.Fatal("primary should be consulted once")
	}
	raw := cache.raw("me")
	if raw != Instance(fresh) || raw.Expired(testNow) {
		t.Fatalf("cache should hold the fresh value, got %#v", raw)
	}
}

func TestFindWritesThroughOnMiss(t *testing.T) {
	env := newTestEnv(t, nil)
	value := newTestInstance("me", "v")
	primary := &mockBackend{findResult: value}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)

	if _, err := r.Find(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
	if cache.raw("me") != Instance(value) {
		t.Fatal("value should have been written to the cache")
	}
	if !value.Expiration().Equal(testNow.Add(DefaultTTL)) {
		t.Fatalf("expected expiration to be stamped, got %s", value.Expiration())
	}

	saves := 0
	for _, c := range cache.getCalls() {
		if c.method == OpSave {
			saves++
			if c.instance != Instance(value) {
				t.Fatal("cache save should carry the found instance")
			}
		}
	}
	if saves != 1 {
		t.Fatalf("expected one cache save, got %d", saves)
	}
}

func TestFindKeepsBackendExpiration(t *testing.T) {
	env := newTestEnv(t, nil)
	value := newTestInstance("me", "v")
	own := testNow.Add(5 * time.Minute)
	value.SetExpiration(own)
	r := env.plainRouter(t, &mockBackend{findResult: value})

	got, err := r.Find(context.Background(), "me")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Expiration().Equal(own) {
		t.Fatalf("expiration should be kept, got %s", got.Expiration())
	}
}

func TestFindIsolatesCacheReadErrors(t *testing.T) {
	for _, panics := range []bool{false, true} {
		env := newTestEnv(t, nil)
		value := newTestInstance("me", "v")
		primary := &mockBackend{findResult: value}
		cache := &failingCache{mockBackend: newStoreBackend(), panics: panics}
		r := env.cachedRouter(t, primary, cache)

		got, err := r.Find(context.Background(), "me")
		if err != nil {
			t.Fatalf("panics=%v: cache error must not propagate: %v", panics, err)
		}
		if got != Instance(value) {
			t.Fatalf("panics=%v: expected primary value", panics)
		}
	}
}

func TestFindPropagatesCacheWriteErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	primary := &mockBackend{findResult: newTestInstance("me", "v")}
	boom := errors.New("disk full")
	cache := &mockBackend{saveErr: boom}
	r := env.cachedRouter(t, primary, cache)

	if _, err := r.Find(context.Background(), "me"); err != boom {
		t.Fatalf("expected cache write error unchanged, got %v", err)
	}
}

func TestFindIgnoreCache(t *testing.T) {
	env := newTestEnv(t, nil)
	value := newTestInstance("me", "v")
	primary := &mockBackend{findResult: value}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)

	old := newTestInstance("me", "old")
	old.SetExpiration(testNow.Add(time.Hour))
	cache.put(old)

	got, err := r.Find(context.Background(), "me", IgnoreCache())
	if err != nil {
		t.Fatal(err)
	}
	if got != Instance(value) {
		t.Fatal("expected primary value")
	}
	if cache.count(OpFind) != 0 {
		t.Fatal("cache must not be read")
	}
	if cache.count(OpSave) != 1 || cache.raw("me") != Instance(value) {
		t.Fatal("cache should still be written")
	}
}

func TestFindIgnoreBackend(t *testing.T) {
	env := newTestEnv(t, nil)
	primary := &mockBackend{findResult: newTestInstance("me", "v")}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)

	got, err := r.Find(context.Background(), "me", IgnoreBackend())
	if err != nil || got != nil {
		t.Fatalf("expected nil, got %#v %v", got, err)
	}

	cached := newTestInstance("other", "c")
	cache.put(cached)
	got, err = r.Find(context.Background(), "other", IgnoreBackend())
	if err != nil || got != Instance(cached) {
		t.Fatalf("expected cached value, got %#v %v", got, err)
	}
	if n := len(primary.getCalls()); n != 0 {
		t.Fatalf("primary must never be consulted, got %d calls", n)
	}
}

func TestFindAppliesFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	primary := &filteringBackend{&mockBackend{findResult: newTestInstance("me", "v")}}
	r := env.plainRouter(t, primary)

	got, err := Find[*testInstance](context.Background(), r, "me")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "filtered:v" {
		t.Fatalf("expected filtered value, got %q", got.Value)
	}
}

func TestFindNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	var typedNil *testInstance
	cache := newStoreBackend()
	r := env.cachedRouter(t, &mockBackend{findResult: typedNil}, cache)

	got, err := r.Find(context.Background(), "me")
	if err != nil || got != nil {
		t.Fatalf("expected nil, got %#v %v", got, err)
	}
	if cache.count(OpSave) != 0 {
		t.Fatal("nothing should be cached")
	}
}

func TestTypedFindRejectsOtherTypes(t *testing.T) {
	type otherInstance struct{ testInstance }
	env := newTestEnv(t, nil)
	r := env.plainRouter(t, &mockBackend{findResult: newTestInstance("me", "v")})

	_, err := Find[*otherInstance](context.Background(), r, "me")
	if !errors.Is(err, ErrInvalidResultType) {
		t.Fatalf("expected ErrInvalidResultType, got %v", err)
	}
}

func TestTypedSearchRejectsOtherTypes(t *testing.T) {
	type otherInstance struct{ testInstance }
	env := newTestEnv(t, nil)
	r := env.plainRouter(t, &mockBackend{searchResult: []Instance{newTestInstance("me", "v")}})

	_, err := Search[*otherInstance](context.Background(), r, "*")
	if !errors.Is(err, ErrInvalidResultType) {
		t.Fatalf("expected ErrInvalidResultType, got %v", err)
	}
	if !strings.Contains(err.Error(), "*router.testInstance") {
		t.Fatalf("expected the offending type in %q", err)
	}

	found, err := Search[*testInstance](context.Background(), r, "*")
	if err != nil || len(found) != 1 || found[0].Value != "v" {
		t.Fatalf("expected one typed result, got %#v %v", found, err)
	}
}

func TestSearchNeverTouchesCache(t *testing.T) {
	env := newTestEnv(t, nil)
	a := newTestInstance("a", "1")
	primary := &mockBackend{searchResult: []Instance{a}}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)

	got, err := Search[*testInstance](context.Background(), r, "*")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != a {
		t.Fatalf("unexpected results %#v", got)
	}
	if !a.Expiration().Equal(testNow.Add(DefaultTTL)) {
		t.Fatal("search results should get an expiration")
	}
	if n := len(cache.getCalls()); n != 0 {
		t.Fatalf("cache must not be used by search, got %d calls", n)
	}

	primary.searchResult = nil
	results, err := r.Search(context.Background(), "*")
	if err != nil || results != nil {
		t.Fatalf("expected nil results, got %#v %v", results, err)
	}
}

func TestSaveWritesThroughOnlyOnSuccess(t *testing.T) {
	t.Run("primary fails", func(t *testing.T) {
		env := newTestEnv(t, nil)
		boom := errors.New("eh")
		cache := newStoreBackend()
		r := env.cachedRouter(t, &mockBackend{saveErr: boom}, cache)

		_, err := r.Save(context.Background(), newTestInstance("me", "v"))
		if err != boom {
			t.Fatalf("expected primary error unchanged, got %v", err)
		}
		if cache.count(OpSave) != 0 {
			t.Fatal("cache save must not be called")
		}
	})

	t.Run("primary succeeds", func(t *testing.T) {
		env := newTestEnv(t, nil)
		cache := newStoreBackend()
		primary := &mockBackend{saveResult: "foo"}
		r := env.cachedRouter(t, primary, cache)
		instance := newTestInstance("me", "v")

		result, err := r.Save(context.Background(), instance)
		if err != nil {
			t.Fatal(err)
		}
		if result != "foo" {
			t.Fatalf("expected primary result, got %v", result)
		}
		calls := cache.getCalls()
		if len(calls) != 1 || calls[0].method != OpSave || calls[0].instance != Instance(instance) {
			t.Fatalf("expected exactly one cache save with the instance, got %#v", calls)
		}
		if calls[0].request == primary.getCalls()[0].request {
			t.Fatal("cache save should use a fresh request")
		}
	})
}

func TestDestroyPurgesCache(t *testing.T) {
	env := newTestEnv(t, nil)
	primary := &mockBackend{destroyResult: "yayness"}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)
	cache.put(newTestInstance("me", "v"))

	result, err := r.Destroy(context.Background(), "me")
	if err != nil {
		t.Fatal(err)
	}
	if result != "yayness" {
		t.Fatalf("expected primary result, got %v", result)
	}
	if cache.raw("me") != nil {
		t.Fatal("cache entry should be removed")
	}
	if cache.count(OpFind) != 1 || cache.count(OpDestroy) != 1 {
		t.Fatalf("expected a cache lookup and destroy, got %#v", cache.getCalls())
	}

	cache.clearCalls()
	if _, err := r.Destroy(context.Background(), "absent"); err != nil {
		t.Fatal(err)
	}
	if cache.count(OpDestroy) != 0 {
		t.Fatal("cache destroy only runs for cached keys")
	}
}

func TestDestroyKeepsCacheWhenPrimaryFails(t *testing.T) {
	env := newTestEnv(t, nil)
	boom := errors.New("locked")
	cache := newStoreBackend()
	r := env.cachedRouter(t, &mockBackend{destroyErr: boom}, cache)
	cache.put(newTestInstance("me", "v"))

	if _, err := r.Destroy(context.Background(), "me"); err != boom {
		t.Fatalf("expected primary error, got %v", err)
	}
	if cache.raw("me") == nil || len(cache.getCalls()) != 0 {
		t.Fatal("cache must be left untouched")
	}
}

func TestExpireMarksWithoutRemoving(t *testing.T) {
	env := newTestEnv(t, nil)
	fresh := newTestInstance("me", "fresh")
	primary := &mockBackend{findResult: fresh}
	cache := newStoreBackend()
	r := env.cachedRouter(t, primary, cache)

	cached := newTestInstance("me", "cached")
	cached.SetExpiration(testNow.Add(time.Hour))
	cache.put(cached)

	if err := r.Expire(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
	raw := cache.raw("me")
	if raw == nil {
		t.Fatal("expired entry must stay in the cache")
	}
	if !raw.Expiration().Before(testNow) || !raw.Expired(testNow) {
		t.Fatalf("expected expiration in the past, got %s", raw.Expiration())
	}

	got, err := r.Find(context.Background(), "me")
	if err != nil {
		t.Fatal(err)
	}
	if got != Instance(fresh) || primary.count(OpFind) != 1 {
		t.Fatal("find after expire should go back to the primary")
	}
}

// A primary handing out its stored pointer keeps the expiration stamped by
// the first find; expiring the cached copy must not reach it.
func TestExpireThenFindWithSharedPointerPrimary(t *testing.T) {
	env := newTestEnv(t, MapSettings{"runinterval": "3600"})
	primary := newStoreBackend()
	primary.put(newTestInstance("me", "stored"))
	cache := newCopyingCache()
	r := env.cachedRouter(t, primary, cache)
	ctx := context.Background()

	first, err := r.Find(ctx, "me")
	if err != nil || first == nil {
		t.Fatalf("expected value, got %#v %v", first, err)
	}
	if err := r.Expire(ctx, "me"); err != nil {
		t.Fatal(err)
	}
	if primary.raw("me").Expired(testNow) {
		t.Fatal("expire must not reach the primary's stored value")
	}

	got, err := r.Find(ctx, "me")
	if err != nil || got == nil {
		t.Fatalf("expected value, got %#v %v", got, err)
	}
	if got.Expired(testNow) {
		t.Fatalf("find after expire returned a stale value, expiration %s", got.Expiration())
	}
	if primary.count(OpFind) != 2 {
		t.Fatalf("expected two primary finds, got %d", primary.count(OpFind))
	}
	if cache.raw("me").Expired(testNow) {
		t.Fatalf("refetch must overwrite the expired cache entry, got %s", cache.raw("me").Expiration())
	}
}

func TestExpireNoops(t *testing.T) {
	env := newTestEnv(t, nil)
	primary := &mockBackend{}
	r := env.plainRouter(t, primary)
	if err := r.Expire(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
	if len(primary.getCalls()) != 0 {
		t.Fatal("expire without caching must not touch backends")
	}

	env2 := newTestEnv(t, nil)
	cache := newStoreBackend()
	r2 := env2.cachedRouter(t, &mockBackend{}, cache)
	if err := r2.Expire(context.Background(), "absent"); err != nil {
		t.Fatal(err)
	}
	if cache.count(OpSave) != 0 {
		t.Fatal("nothing to expire")
	}
}

func TestAuthorizationGate(t *testing.T) {
	ops := map[Operation]func(r *Router) error{
		OpFind: func(r *Router) error {
			_, err := r.Find(context.Background(), "me", WithNode("agent1"))
			return err
		},
		OpSearch: func(r *Router) error {
			_, err := r.Search(context.Background(), "me", WithNode("agent1"))
			return err
		},
		OpSave: func(r *Router) error {
			_, err := r.Save(context.Background(), newTestInstance("me", "v"), WithNode("agent1"))
			return err
		},
		OpDestroy: func(r *Router) error {
			_, err := r.Destroy(context.Background(), "me", WithNode("agent1"))
			return err
		},
	}

	for op, call := range ops {
		t.Run(string(op), func(t *testing.T) {
			env := newTestEnv(t, nil)
			backend := &authBackend{mockBackend: &mockBackend{}, allow: false}
			r := env.plainRouter(t, backend)

			err := call(r)
			if !errors.Is(err, errors.Unauthorized) {
				t.Fatalf("expected Unauthorized, got %v", err)
			}
			if !strings.Contains(err.Error(), string(op)) || !strings.Contains(err.Error(), "node/me") {
				t.Fatalf("message should name operation and key: %v", err)
			}
			if !strings.Contains(err.Error(), "node=agent1") {
				t.Fatalf("message should list options: %v", err)
			}
			if n := len(backend.getCalls()); n != 0 {
				t.Fatalf("backend must not be invoked, got %d calls", n)
			}
		})
	}
}

func TestAuthorizationAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	value := newTestInstance("me", "v")
	backend := &authBackend{mockBackend: &mockBackend{findResult: value}, allow: true}
	r := env.plainRouter(t, backend)

	got, err := r.Find(context.Background(), "me", WithNode("agent1"))
	if err != nil || got != Instance(value) {
		t.Fatalf("expected value, got %#v %v", got, err)
	}
	if len(backend.authReqs) != 1 || backend.authReqs[0].Node() != "agent1" {
		t.Fatal("authorizer should see the request")
	}
}

func TestAuthorizationSkippedWithoutNode(t *testing.T) {
	env := newTestEnv(t, nil)
	backend := &authBackend{
		mockBackend: &mockBackend{findResult: newTestInstance("me", "v"), saveResult: "ok"},
		panicOnUse:  true,
	}
	r := env.plainRouter(t, backend)

	if _, err := r.Find(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Search(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Save(context.Background(), newTestInstance("me", "v")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Destroy(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
}

func TestMissingCapabilityIsNotSupported(t *testing.T) {
	env := newTestEnv(t, nil)
	r := env.plainRouter(t, findOnly{})

	if _, err := r.Search(context.Background(), "*"); !errors.Is(err, errors.NotSupported) {
		t.Fatalf("expected NotSupported, got %v", err)
	}
	if _, err := r.Save(context.Background(), newTestInstance("me", "v")); !errors.Is(err, errors.NotSupported) {
		t.Fatalf("expected NotSupported, got %v", err)
	}
	if _, err := r.Destroy(context.Background(), "me"); !errors.Is(err, errors.NotSupported) {
		t.Fatalf("expected NotSupported, got %v", err)
	}
}

func TestSelectorChoosesBackend(t *testing.T) {
	env := newTestEnv(t, nil)
	local := &mockBackend{findResult: newTestInstance("file:///etc/hosts", "local")}
	remote := &mockBackend{findResult: newTestInstance("puppet://x/y", "remote")}
	env.register(t, "file_content", "file", local)
	env.register(t, "file_content", "rest", remote)

	r, err := env.dir.New("file_content", testModel, WithSelector(SchemeSelector{
		Schemes: map[string]string{"file": "file", "puppet": "rest"},
		Default: "file",
	}))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Find(context.Background(), "puppet://x/y"); err != nil {
		t.Fatal(err)
	}
	if remote.count(OpFind) != 1 || local.count(OpFind) != 0 {
		t.Fatal("puppet scheme should go to rest")
	}
	if _, err := r.Find(context.Background(), "/etc/hosts"); err != nil {
		t.Fatal(err)
	}
	if local.count(OpFind) != 1 {
		t.Fatal("plain path should go to the default")
	}

	_, err = r.Find(context.Background(), "ftp://example.com/file")
	if !errors.Is(err, errors.NotValid) || !strings.Contains(err.Error(), "could not determine appropriate backend") {
		t.Fatalf("expected NotValid for unknown scheme, got %v", err)
	}
}

func TestDefaultRouteAndDoc(t *testing.T) {
	env := newTestEnv(t, nil)
	r, _ := env.dir.New("node", testModel, WithDoc("Where nodes live."))
	if r.DefaultRoute() != nil {
		t.Fatal("router without backend or cache has no default route")
	}

	env.register(t, "node", "memory", &mockBackend{})
	if err := r.SetBackendType("memory"); err != nil {
		t.Fatal(err)
	}
	def := r.DefaultRoute()
	if def == nil || def.Backend != "memory" || def.Cache != "" {
		t.Fatalf("unexpected default route %#v", def)
	}
	if !strings.HasPrefix(r.Doc(), "Where nodes live.") {
		t.Fatalf("unexpected doc %q", r.Doc())
	}
}
