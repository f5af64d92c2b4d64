// Package memory keeps router values in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/juju/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/ryanuber/go-glob"

	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the memory backend registers under.
const TypeName = "memory"

// Backend stores instances by key.
type Backend struct {
	instances *xsync.MapOf[string, router.Instance]
}

// New returns an empty memory backend.
func New() *Backend {
	return &Backend{instances: xsync.NewMapOf[string, router.Instance]()}
}

// Factory builds one memory backend per router.
func Factory(*router.Router) (router.Backend, error) {
	return New(), nil
}

// Register adds the memory backend for every named router to reg.
func Register(reg *router.Registry, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the instance stored under the request key, nil if none.
func (b *Backend) Find(_ context.Context, req *router.Request) (router.Instance, error) {
	instance, ok := b.instances.Load(req.Key())
	if !ok {
		return nil, nil
	}
	return instance, nil
}

// Search returns the instances whose keys match the request key as a glob,
// sorted by key.
func (b *Backend) Search(_ context.Context, req *router.Request) ([]router.Instance, error) {
	pattern := req.Key()
	if pattern == "" {
		pattern = "*"
	}
	var keys []string
	b.instances.Range(func(key string, _ router.Instance) bool {
		if glob.Glob(pattern, key) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)

	results := make([]router.Instance, 0, len(keys))
	for _, key := range keys {
		if instance, ok := b.instances.Load(key); ok {
			results = append(results, instance)
		}
	}
	return results, nil
}

// Save stores the request instance under the request key.
func (b *Backend) Save(_ context.Context, req *router.Request) (any, error) {
	if req.Instance() == nil {
		return nil, errors.NotValidf("save without instance for %s", req)
	}
	b.instances.Store(req.Key(), req.Instance())
	return req.Instance(), nil
}

// Destroy removes the request key and returns the removed instance. Removing
// an unknown key is an error.
func (b *Backend) Destroy(_ context.Context, req *router.Request) (any, error) {
	instance, ok := b.instances.LoadAndDelete(req.Key())
	if !ok {
		return nil, errors.NewNotValid(nil, fmt.Sprintf("could not find %s to destroy", req.Key()))
	}
	return instance, nil
}

// Len returns the number of stored instances.
func (b *Backend) Len() int {
	return b.instances.Size()
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return "Keeps values in process memory. Destroying an unknown key is an error."
}
