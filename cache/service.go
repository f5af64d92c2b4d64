package cache

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

// ErrInvalidResultType is returned by Get when the stored value is not a T.
const ErrInvalidResultType = errors.ConstError("cached value has unexpected type")

// KeySerializer builds a cache key from a namespace and the parts that
// identify an entry. Keys sharing a namespace share the NamespacePrefix.
type KeySerializer interface {
	SerializeKey(namespace string, parts ...any) string
	NamespacePrefix(namespace string) string
}

// CacheService is the storage contract used by cache backends.
type CacheService interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Get is a type-safe wrapper around CacheService.Get. A miss returns the zero
// T with ok false.
func Get[T any](ctx context.Context, service CacheService, key string) (T, bool, error) {
	var zero T
	value, ok, err := service.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if value == nil {
		return zero, true, nil
	}
	typed, isT := value.(T)
	if !isT {
		return zero, false, fmt.Errorf("%w: key %q holds %T", ErrInvalidResultType, key, value)
	}
	return typed, true, nil
}
