package router

import (
	"context"
	"net/url"
	"strings"

	"github.com/goliatone/go-repository-router/internal/naming"
)

// Selector picks the backend type for a single request, overriding the
// router's configured backend. An empty result is an error.
type Selector interface {
	SelectBackend(ctx context.Context, req *Request) (string, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, req *Request) (string, error)

// SelectBackend calls f.
func (f SelectorFunc) SelectBackend(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}

// SchemeSelector routes keys written as URIs by their scheme, e.g.
// "file:///etc/hosts" to a "file" backend and "mount://modules/x" to a
// "mount" backend. Keys without a scheme go to Default.
type SchemeSelector struct {
	Schemes map[string]string
	Default string
}

// SelectBackend returns the backend type for the request key's scheme. An
// unknown scheme yields "".
func (s SchemeSelector) SelectBackend(_ context.Context, req *Request) (string, error) {
	key := req.Key()
	if !strings.Contains(key, "://") {
		return s.Default, nil
	}
	u, err := url.Parse(key)
	if err != nil {
		return "", nil
	}
	if u.Scheme == "" {
		return s.Default, nil
	}
	return naming.Normalize(s.Schemes[strings.ToLower(u.Scheme)]), nil
}
