package document

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-router/backends/relational"
	"github.com/goliatone/go-repository-router/router"
)

// Row is the relational form of a document. Rows of every router share one
// table and are unique per (router, name).
type Row struct {
	bun.BaseModel `bun:"table:router_documents,alias:rd"`

	ID        string    `bun:"id,pk"`
	Router    string    `bun:"router,notnull"`
	Name      string    `bun:"name,notnull"`
	Data      []byte    `bun:"data"`
	ExpiresAt time.Time `bun:"expires_at,nullzero"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// NewRow returns an empty row, used as the scan target of queries.
func NewRow() *Row { return &Row{} }

// CreateTable creates the document table and its (router, name) index.
func CreateTable(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*Row)(nil)).IfNotExists().Exec(ctx); err != nil {
		return errors.Annotate(err, "creating router_documents")
	}
	_, err := db.NewCreateIndex().
		Model((*Row)(nil)).
		Index("router_documents_router_name_idx").
		Unique().
		IfNotExists().
		Column("router", "name").
		Exec(ctx)
	return errors.Annotate(err, "indexing router_documents")
}

// NewStore returns a relational store over the document table.
func NewStore(db bun.IDB) (*relational.BunStore[*Row], error) {
	return relational.NewBunStore(db, NewRow, relational.StoreConfig{
		Identifier: "name",
		Conflict:   []string{"router", "name"},
		Update:     []string{"data", "expires_at", "updated_at"},
	})
}

// RowMapper converts documents to rows and back.
type RowMapper struct {
	// Now stamps UpdatedAt; time.Now when nil.
	Now func() time.Time
}

// ToRecord encodes instance, which must be a *Document, as a row of routerName.
func (m RowMapper) ToRecord(routerName string, instance router.Instance) (*Row, error) {
	doc, ok := instance.(*Document)
	if !ok {
		return nil, errors.NotValidf("instance %T for relational document storage", instance)
	}
	data, err := msgpack.Marshal(doc.Data)
	if err != nil {
		return nil, errors.Annotatef(err, "encoding %s/%s", routerName, doc.Key)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return &Row{
		ID:        uuid.NewString(),
		Router:    routerName,
		Name:      doc.Key,
		Data:      data,
		ExpiresAt: doc.Expiration().UTC(),
		UpdatedAt: now().UTC(),
	}, nil
}

// FromRecord decodes a row into a document.
func (m RowMapper) FromRecord(row *Row) (router.Instance, error) {
	doc := New(row.Name)
	if len(row.Data) > 0 {
		if err := msgpack.Unmarshal(row.Data, &doc.Data); err != nil {
			return nil, errors.Annotatef(err, "decoding %s/%s", row.Router, row.Name)
		}
	}
	if !row.ExpiresAt.IsZero() {
		doc.SetExpiration(row.ExpiresAt)
	}
	return doc, nil
}
