package relational

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/juju/errors"
	"github.com/uptrace/bun"
)

// Store is the slice of a repository the relational backend needs. Any
// go-repository-bun repository satisfies it.
type Store[T any] interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	Delete(ctx context.Context, record T) error
}

var _ Store[any] = (repository.Repository[any])(nil)

// BunStore is a Store over a bun database for models keyed by a name column
// and unique per (scope, name).
type BunStore[T any] struct {
	db         bun.IDB
	newRecord  func() T
	identifier string
	conflict   []string
	update     []string
}

// StoreConfig names the columns BunStore works with.
type StoreConfig struct {
	// Identifier is the column GetByIdentifier matches.
	Identifier string
	// Conflict lists the columns of the unique index upserts resolve on.
	Conflict []string
	// Update lists the columns an upsert overwrites.
	Update []string
}

// NewBunStore returns a store whose queries scan into records built by
// newRecord.
func NewBunStore[T any](db bun.IDB, newRecord func() T, cfg StoreConfig) (*BunStore[T], error) {
	if db == nil {
		return nil, errors.NotValidf("nil database")
	}
	if newRecord == nil {
		return nil, errors.NotValidf("nil record constructor")
	}
	if cfg.Identifier == "" {
		return nil, errors.NotValidf("store without identifier column")
	}
	return &BunStore[T]{
		db:         db,
		newRecord:  newRecord,
		identifier: cfg.Identifier,
		conflict:   cfg.Conflict,
		update:     cfg.Update,
	}, nil
}

// GetByIdentifier returns the record whose identifier column equals
// identifier. A missing record is a NotFound error.
func (s *BunStore[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	record := s.newRecord()
	q := s.db.NewSelect().Model(record).
		Where("?TableAlias.? = ?", bun.Ident(s.identifier), identifier)
	for _, c := range criteria {
		q = c(q)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, errors.NotFoundf("record %q", identifier)
		}
		return zero, errors.Trace(err)
	}
	return record, nil
}

// List returns the records matching criteria and their total count.
func (s *BunStore[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	var records []T
	q := s.db.NewSelect().Model(&records)
	for _, c := range criteria {
		q = c(q)
	}
	count, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return records, count, nil
}

// Upsert inserts record, overwriting the configured columns when a record
// with the same conflict key exists. Update criteria do not apply to inserts
// and are ignored.
func (s *BunStore[T]) Upsert(ctx context.Context, record T, _ ...repository.UpdateCriteria) (T, error) {
	q := s.db.NewInsert().Model(record)
	if len(s.conflict) > 0 {
		q = q.On("CONFLICT (" + strings.Join(s.conflict, ", ") + ") DO UPDATE")
		for _, col := range s.update {
			q = q.Set("? = EXCLUDED.?", bun.Ident(col), bun.Ident(col))
		}
	}
	if _, err := q.Exec(ctx); err != nil {
		var zero T
		return zero, errors.Trace(err)
	}
	return record, nil
}

// Delete removes record by primary key.
func (s *BunStore[T]) Delete(ctx context.Context, record T) error {
	_, err := s.db.NewDelete().Model(record).WherePK().Exec(ctx)
	return errors.Trace(err)
}
