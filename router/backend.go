package router

import (
	"context"
	"reflect"
	"strings"
)

// Backend is a storage or retrieval implementation bound to one router. A
// backend opts into operations by implementing the capability interfaces
// below; the router reports a missing capability as NotSupported.
type Backend any

// Finder looks up a single value. A nil instance with a nil error means the
// key is unknown.
type Finder interface {
	Find(ctx context.Context, req *Request) (Instance, error)
}

// Searcher looks up every value matching the request key.
type Searcher interface {
	Search(ctx context.Context, req *Request) ([]Instance, error)
}

// Saver persists req.Instance().
type Saver interface {
	Save(ctx context.Context, req *Request) (any, error)
}

// Destroyer removes the value addressed by req.Key().
type Destroyer interface {
	Destroy(ctx context.Context, req *Request) (any, error)
}

// Authorizer decides whether the node on a request may perform it. It is only
// consulted for requests that carry a node.
type Authorizer interface {
	Authorized(ctx context.Context, req *Request) bool
}

// Filterer post-processes values returned from Find.
type Filterer interface {
	Filter(ctx context.Context, instance Instance) (Instance, error)
}

// Factory builds the backend instance for a router. It runs at most once per
// router and backend type until the router's backends are cleared.
type Factory func(r *Router) (Backend, error)

// Capability names a single backend capability.
type Capability string

const (
	CapFind      Capability = "find"
	CapSearch    Capability = "search"
	CapSave      Capability = "save"
	CapDestroy   Capability = "destroy"
	CapAuthorize Capability = "authorize"
	CapFilter    Capability = "filter"
)

// Capabilities lists what b implements, in a fixed order.
func Capabilities(b Backend) []Capability {
	var caps []Capability
	if _, ok := b.(Finder); ok {
		caps = append(caps, CapFind)
	}
	if _, ok := b.(Searcher); ok {
		caps = append(caps, CapSearch)
	}
	if _, ok := b.(Saver); ok {
		caps = append(caps, CapSave)
	}
	if _, ok := b.(Destroyer); ok {
		caps = append(caps, CapDestroy)
	}
	if _, ok := b.(Authorizer); ok {
		caps = append(caps, CapAuthorize)
	}
	if _, ok := b.(Filterer); ok {
		caps = append(caps, CapFilter)
	}
	return caps
}

// DescribeCapabilities renders Capabilities(b) as a comma separated list.
func DescribeCapabilities(b Backend) string {
	caps := Capabilities(b)
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

// isNil catches typed nil pointers hidden inside an Instance interface, which
// backends returning (*T)(nil) would otherwise leak as "found".
func isNil(i Instance) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
