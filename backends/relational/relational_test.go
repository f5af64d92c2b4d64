package relational_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-router/backends/relational"
	"github.com/goliatone/go-repository-router/document"
	"github.com/goliatone/go-repository-router/router"
)

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := relational.Open(ctx, relational.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, document.CreateTable(ctx, db))
	return db
}

func newRouters(t *testing.T, db *bun.DB, names ...string) map[string]*router.Router {
	t.Helper()
	store, err := document.NewStore(db)
	require.NoError(t, err)

	reg := router.NewRegistry()
	require.NoError(t, relational.Register[*document.Row](reg, store, document.RowMapper{}, names...))
	dir := router.NewDirectory(router.WithRegistry(reg))

	routers := make(map[string]*router.Router, len(names))
	for _, name := range names {
		r, err := dir.New(name, document.Model, router.WithBackendType(relational.TypeName))
		require.NoError(t, err)
		routers[name] = r
	}
	return routers
}

func TestSaveFindUpsert(t *testing.T) {
	ctx := context.Background()
	node := newRouters(t, openTestDB(t), "node")["node"]

	doc := document.New("web01")
	doc.Set("role", "web")
	doc.SetExpiration(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := node.Save(ctx, doc)
	require.NoError(t, err)

	found, err := router.Find[*document.Document](ctx, node, "web01")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "web", found.Data["role"])
	assert.True(t, found.Expiration().Equal(doc.Expiration()))

	doc.Set("role", "proxy")
	_, err = node.Save(ctx, doc)
	require.NoError(t, err)

	found, err = router.Find[*document.Document](ctx, node, "web01")
	require.NoError(t, err)
	assert.Equal(t, "proxy", found.Data["role"])

	missing, err := node.Find(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSearchScopesByRouter(t *testing.T) {
	ctx := context.Background()
	routers := newRouters(t, openTestDB(t), "node", "facts")

	for _, key := range []string{"web02", "web01", "db01", "web_x"} {
		_, err := routers["node"].Save(ctx, document.New(key))
		require.NoError(t, err)
	}
	_, err := routers["facts"].Save(ctx, document.New("web03"))
	require.NoError(t, err)

	results, err := router.Search[*document.Document](ctx, routers["node"], "web0*")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "web01", results[0].Key)
	assert.Equal(t, "web02", results[1].Key)

	all, err := routers["node"].Search(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	single, err := routers["node"].Search(ctx, "web?x")
	require.NoError(t, err)
	assert.Len(t, single, 1)

	facts, err := routers["facts"].Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	node := newRouters(t, openTestDB(t), "node")["node"]

	_, err := node.Save(ctx, document.New("web01"))
	require.NoError(t, err)

	destroyed, err := node.Destroy(ctx, "web01")
	require.NoError(t, err)
	assert.Equal(t, "web01", destroyed.(*document.Document).Key)

	_, err = node.Destroy(ctx, "web01")
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Contains(t, err.Error(), "could not find web01 to destroy")
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := relational.Open(context.Background(), "oracle", "")
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestNewValidates(t *testing.T) {
	_, err := relational.New[*document.Row](nil, document.RowMapper{}, "node")
	assert.Error(t, err)

	_, err = relational.NewBunStore[*document.Row](nil, document.NewRow, relational.StoreConfig{Identifier: "name"})
	assert.Error(t, err)
}
