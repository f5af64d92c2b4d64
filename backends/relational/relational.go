// Package relational stores router values as rows through a
// go-repository-bun style Store.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the relational backend registers under.
const TypeName = "relational"

var logger = loggo.GetLogger("router.backends.relational")

// Mapper converts between router values and store records.
type Mapper[T any] interface {
	ToRecord(routerName string, instance router.Instance) (T, error)
	FromRecord(record T) (router.Instance, error)
}

// Backend keeps the values of one router in a Store. Records carry a router
// and a name column, so routers can share a table.
type Backend[T any] struct {
	store      Store[T]
	mapper     Mapper[T]
	routerName string
}

// New returns a backend for routerName.
func New[T any](store Store[T], mapper Mapper[T], routerName string) (*Backend[T], error) {
	if store == nil || mapper == nil {
		return nil, errors.NotValidf("relational backend for router %q without store or mapper", routerName)
	}
	return &Backend[T]{store: store, mapper: mapper, routerName: routerName}, nil
}

// Factory builds a backend over store for every router it is used by.
func Factory[T any](store Store[T], mapper Mapper[T]) router.Factory {
	return func(r *router.Router) (router.Backend, error) {
		return New(store, mapper, r.Name())
	}
}

// Register adds the relational backend for every named router to reg.
func Register[T any](reg *router.Registry, store Store[T], mapper Mapper[T], routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory(store, mapper)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend[T]) scope(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("?TableAlias.router = ?", b.routerName)
}

func (b *Backend[T]) get(ctx context.Context, key string) (T, bool, error) {
	record, err := b.store.GetByIdentifier(ctx, key, b.scope)
	if err != nil {
		var zero T
		if errors.Is(err, errors.NotFound) || errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, errors.Annotatef(err, "loading %s/%s", b.routerName, key)
	}
	return record, true, nil
}

// Find returns the stored value for the request key, nil when absent.
func (b *Backend[T]) Find(ctx context.Context, req *router.Request) (router.Instance, error) {
	record, ok, err := b.get(ctx, req.Key())
	if err != nil || !ok {
		return nil, err
	}
	return b.mapper.FromRecord(record)
}

// Search returns the values whose names match the request key, a glob
// supporting * and ?, ordered by name.
func (b *Backend[T]) Search(ctx context.Context, req *router.Request) ([]router.Instance, error) {
	criteria := []repository.SelectCriteria{
		b.scope,
		func(q *bun.SelectQuery) *bun.SelectQuery { return q.OrderExpr("?TableAlias.name ASC") },
	}
	if pattern := req.Key(); pattern != "" && pattern != "*" {
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where(`?TableAlias.name LIKE ? ESCAPE '\'`, globToLike(pattern))
		})
	}

	records, _, err := b.store.List(ctx, criteria...)
	if err != nil {
		return nil, errors.Annotatef(err, "searching %s for %q", b.routerName, req.Key())
	}
	results := make([]router.Instance, 0, len(records))
	for _, record := range records {
		instance, err := b.mapper.FromRecord(record)
		if err != nil {
			return nil, err
		}
		results = append(results, instance)
	}
	logger.Tracef("search %s %q matched %d rows", b.routerName, req.Key(), len(results))
	return results, nil
}

// Save upserts the request instance.
func (b *Backend[T]) Save(ctx context.Context, req *router.Request) (any, error) {
	if req.Instance() == nil {
		return nil, errors.NotValidf("save without instance for %s", req)
	}
	record, err := b.mapper.ToRecord(b.routerName, req.Instance())
	if err != nil {
		return nil, err
	}
	if _, err := b.store.Upsert(ctx, record); err != nil {
		return nil, errors.Annotatef(err, "saving %s/%s", b.routerName, req.Key())
	}
	return req.Instance(), nil
}

// Destroy deletes the row for the request key. Deleting an unknown key is an
// error.
func (b *Backend[T]) Destroy(ctx context.Context, req *router.Request) (any, error) {
	record, ok, err := b.get(ctx, req.Key())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotValid(nil, fmt.Sprintf("could not find %s to destroy", req.Key()))
	}
	if err := b.store.Delete(ctx, record); err != nil {
		return nil, errors.Annotatef(err, "destroying %s/%s", b.routerName, req.Key())
	}
	return b.mapper.FromRecord(record)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`, `?`, `_`)

// globToLike turns a * and ? glob into a LIKE pattern escaped with '\'.
func globToLike(pattern string) string {
	return likeEscaper.Replace(pattern)
}

// Doc describes the backend in reference output.
func (b *Backend[T]) Doc() string {
	return "Stores values as rows of a relational database through bun."
}
