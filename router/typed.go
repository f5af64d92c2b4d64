package router

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

// ErrInvalidResultType is returned by the typed helpers when a backend
// produced a value of another type.
const ErrInvalidResultType = errors.ConstError("unexpected instance type")

// Find is Router.Find with the result asserted to T. A miss returns the zero
// T and a nil error.
func Find[T Instance](ctx context.Context, r *Router, key string, opts ...RequestOption) (T, error) {
	var zero T
	instance, err := r.Find(ctx, key, opts...)
	if err != nil || isNil(instance) {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T", ErrInvalidResultType, r.Name(), instance)
	}
	return typed, nil
}

// Search is Router.Search with every result asserted to T.
func Search[T Instance](ctx context.Context, r *Router, key string, opts ...RequestOption) ([]T, error) {
	instances, err := r.Search(ctx, key, opts...)
	if err != nil || instances == nil {
		return nil, err
	}
	out := make([]T, 0, len(instances))
	for _, instance := range instances {
		typed, ok := instance.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s returned %T", ErrInvalidResultType, r.Name(), instance)
		}
		out = append(out, typed)
	}
	return out, nil
}
