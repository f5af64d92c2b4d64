package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testInstance is the value type used by router tests
type testInstance struct {
	Envelope
	Key   string
	Value string
}

func (i *testInstance) Name() string { return i.Key }

func newTestInstance(key, value string) *testInstance {
	return &testInstance{Key: key, Value: value}
}

var testModel = ModelFunc(func(key string) Instance { return newTestInstance(key, "") })

// recordedCall captures a single backend invocation
type recordedCall struct {
	method   Operation
	key      string
	instance Instance
	request  *Request
}

// mockBackend records every call. With stored set it behaves like a map
// backed store, otherwise it returns the scripted results.
type mockBackend struct {
	mu    sync.Mutex
	calls []recordedCall

	stored bool
	data   map[string]Instance

	findResult    Instance
	findErr       error
	searchResult  []Instance
	searchErr     error
	saveResult    any
	saveErr       error
	destroyResult any
	destroyErr    error
}

func newStoreBackend() *mockBackend {
	return &mockBackend{stored: true, data: make(map[string]Instance)}
}

func (m *mockBackend) record(req *Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedCall{
		method:   req.Method(),
		key:      req.Key(),
		instance: req.Instance(),
		request:  req,
	})
}

func (m *mockBackend) getCalls() []recordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedCall(nil), m.calls...)
}

func (m *mockBackend) count(method Operation) int {
	n := 0
	for _, c := range m.getCalls() {
		if c.method == method {
			n++
		}
	}
	return n
}

func (m *mockBackend) clearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// raw reads the store without recording a call
func (m *mockBackend) raw(key string) Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func (m *mockBackend) put(instance Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[instance.Name()] = instance
}

func (m *mockBackend) Find(ctx context.Context, req *Request) (Instance, error) {
	m.record(req)
	if m.stored {
		return m.raw(req.Key()), nil
	}
	return m.findResult, m.findErr
}

func (m *mockBackend) Search(ctx context.Context, req *Request) ([]Instance, error) {
	m.record(req)
	return m.searchResult, m.searchErr
}

func (m *mockBackend) Save(ctx context.Context, req *Request) (any, error) {
	m.record(req)
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if m.stored {
		m.put(req.Instance())
		return req.Instance(), nil
	}
	return m.saveResult, nil
}

func (m *mockBackend) Destroy(ctx context.Context, req *Request) (any, error) {
	m.record(req)
	if m.destroyErr != nil {
		return nil, m.destroyErr
	}
	if m.stored {
		m.mu.Lock()
		delete(m.data, req.Key())
		m.mu.Unlock()
	}
	return m.destroyResult, nil
}

// authBackend adds an authorization decision to mockBackend
type authBackend struct {
	*mockBackend
	allow      bool
	panicOnUse bool

	authMu   sync.Mutex
	authReqs []*Request
}

func (a *authBackend) Authorized(ctx context.Context, req *Request) bool {
	if a.panicOnUse {
		panic("authorization must not be consulted")
	}
	a.authMu.Lock()
	a.authReqs = append(a.authReqs, req)
	a.authMu.Unlock()
	return a.allow
}

// failingCache fails every read
type failingCache struct {
	*mockBackend
	panics bool
}

func (f *failingCache) Find(ctx context.Context, req *Request) (Instance, error) {
	f.record(req)
	if f.panics {
		panic("cache exploded")
	}
	return nil, errors.New("cache unavailable")
}

// filteringBackend rewrites found values
type filteringBackend struct {
	*mockBackend
}

func (f *filteringBackend) Filter(ctx context.Context, instance Instance) (Instance, error) {
	ti := instance.(*testInstance)
	return &testInstance{Envelope: ti.Envelope, Key: ti.Key, Value: "filtered:" + ti.Value}, nil
}

// findOnly implements nothing but Finder
type findOnly struct{}

func (findOnly) Find(ctx context.Context, req *Request) (Instance, error) { return nil, nil }

type testEnv struct {
	dir      *Directory
	registry *Registry
	clock    *testclock.Clock
}

func newTestEnv(t *testing.T, settings MapSettings) *testEnv {
	t.Helper()
	if settings == nil {
		settings = MapSettings{}
	}
	reg := NewRegistry()
	clk := testclock.NewClock(testNow)
	return &testEnv{
		dir:      NewDirectory(WithRegistry(reg), WithSettings(settings), WithClock(clk)),
		registry: reg,
		clock:    clk,
	}
}

func (e *testEnv) register(t *testing.T, routerName, typeName string, b Backend) {
	t.Helper()
	if err := e.registry.Register(routerName, typeName, func(*Router) (Backend, error) { return b, nil }); err != nil {
		t.Fatalf("register %s/%s: %v", routerName, typeName, err)
	}
}

// cachedRouter builds a "node" router over primary with cache in front
func (e *testEnv) cachedRouter(t *testing.T, primary, cache Backend) *Router {
	t.Helper()
	e.register(t, "node", "primary", primary)
	e.register(t, "node", "cache", cache)
	r, err := e.dir.New("node", testModel, WithBackendType("primary"), WithCacheType("cache"))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func (e *testEnv) plainRouter(t *testing.T, primary Backend) *Router {
	t.Helper()
	e.register(t, "node", "primary", primary)
	r, err := e.dir.New("node", testModel, WithBackendType("primary"))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

// copyingCache stores and returns copies of testInstance values
type copyingCache struct {
	*mockBackend
}

func newCopyingCache() *copyingCache {
	return &copyingCache{mockBackend: newStoreBackend()}
}

func cloneTestInstance(i Instance) Instance {
	if i == nil {
		return nil
	}
	ti := i.(*testInstance)
	c := *ti
	return &c
}

func (c *copyingCache) Find(ctx context.Context, req *Request) (Instance, error) {
	found, err := c.mockBackend.Find(ctx, req)
	return cloneTestInstance(found), err
}

func (c *copyingCache) Save(ctx context.Context, req *Request) (any, error) {
	c.record(req)
	c.put(cloneTestInstance(req.Instance()))
	return req.Instance(), nil
}
