package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

// Operation is one of the verbs a router dispatches.
type Operation string

const (
	OpFind    Operation = "find"
	OpSearch  Operation = "search"
	OpSave    Operation = "save"
	OpDestroy Operation = "destroy"
	OpExpire  Operation = "expire"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpFind, OpSearch, OpSave, OpDestroy, OpExpire:
		return true
	}
	return false
}

// Recognized option names.
const (
	OptionIgnoreCache   = "ignore_cache"
	OptionIgnoreBackend = "ignore_backend"
	OptionNode          = "node"
	OptionIP            = "ip"
	OptionEnvironment   = "environment"
)

// Options is the free-form option mapping passed along with a request.
type Options map[string]any

func (o Options) clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// RequestOption customizes a request's options.
type RequestOption func(Options)

// WithOption sets a single option.
func WithOption(name string, value any) RequestOption {
	return func(o Options) {
		o[name] = value
	}
}

// WithOptions merges every entry of opts.
func WithOptions(opts Options) RequestOption {
	return func(o Options) {
		for k, v := range opts {
			o[k] = v
		}
	}
}

// IgnoreCache skips reading from the cache for this call. Values found in the
// primary backend are still written to the cache.
func IgnoreCache() RequestOption {
	return WithOption(OptionIgnoreCache, true)
}

// IgnoreBackend consults only the cache.
func IgnoreBackend() RequestOption {
	return WithOption(OptionIgnoreBackend, true)
}

// WithNode records the identity of the calling node. Its presence enables
// authorization checks.
func WithNode(node string) RequestOption {
	return WithOption(OptionNode, node)
}

// WithIP records the address of the caller.
func WithIP(ip string) RequestOption {
	return WithOption(OptionIP, ip)
}

// WithEnvironment records the environment the request was made in.
func WithEnvironment(env string) RequestOption {
	return WithOption(OptionEnvironment, env)
}

// Request is the envelope handed to backends. It is immutable once built.
type Request struct {
	id         string
	routerName string
	method     Operation
	key        string
	instance   Instance
	options    Options
}

// NewRequest builds a request for the given router, operation and key.
func NewRequest(routerName string, method Operation, key string, opts ...RequestOption) (*Request, error) {
	if !method.Valid() {
		return nil, errors.NotValidf("operation %q", method)
	}
	options := Options{}
	for _, opt := range opts {
		opt(options)
	}
	return &Request{
		id:         uuid.NewString(),
		routerName: routerName,
		method:     method,
		key:        key,
		options:    options,
	}, nil
}

// NewSaveRequest builds a save request whose key is the instance name.
func NewSaveRequest(routerName string, instance Instance, opts ...RequestOption) (*Request, error) {
	if isNil(instance) {
		return nil, errors.NotValidf("nil instance for %s save", routerName)
	}
	req, err := NewRequest(routerName, OpSave, instance.Name(), opts...)
	if err != nil {
		return nil, err
	}
	req.instance = instance
	return req, nil
}

// ID identifies the request in logs.
func (r *Request) ID() string { return r.id }

// RouterName returns the name of the router the request addresses.
func (r *Request) RouterName() string { return r.routerName }

// Method returns the requested operation.
func (r *Request) Method() Operation { return r.method }

// Key returns the request key.
func (r *Request) Key() string { return r.key }

// Instance returns the payload of a save request, nil otherwise.
func (r *Request) Instance() Instance { return r.instance }

// Options returns a copy of the request options.
func (r *Request) Options() Options { return r.options.clone() }

// Option returns a single option value.
func (r *Request) Option(name string) (any, bool) {
	v, ok := r.options[name]
	return v, ok
}

// StringOption returns an option rendered as a string, "" when absent.
func (r *Request) StringOption(name string) string {
	v, ok := r.options[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// BoolOption interprets an option as a boolean. Strings such as "true" and
// "yes" count, which keeps query-string options usable.
func (r *Request) BoolOption(name string) bool {
	v, ok := r.options[name]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(b) {
		case "true", "yes", "1", "on":
			return true
		}
	}
	return false
}

// Node returns the identity of the calling node, "" when unknown.
func (r *Request) Node() string { return r.StringOption(OptionNode) }

// IP returns the address of the caller, "" when unknown.
func (r *Request) IP() string { return r.StringOption(OptionIP) }

// Environment returns the environment option, "" when unset.
func (r *Request) Environment() string { return r.StringOption(OptionEnvironment) }

// IgnoreCache reports whether cache reads are suppressed.
func (r *Request) IgnoreCache() bool { return r.BoolOption(OptionIgnoreCache) }

// IgnoreBackend reports whether the primary backend must not be consulted.
func (r *Request) IgnoreBackend() bool { return r.BoolOption(OptionIgnoreBackend) }

// String renders the request as "method router/key".
func (r *Request) String() string {
	return fmt.Sprintf("%s %s/%s", r.method, r.routerName, r.key)
}

// describeOptions renders options in a stable order for error messages.
func describeOptions(opts Options) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, opts[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
