package relational

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open connects to dsn with driver and wraps the connection in a bun.DB using
// the matching dialect.
func Open(ctx context.Context, driver, dsn string) (*bun.DB, error) {
	var dialect schema.Dialect
	switch driver {
	case DriverSQLite:
		dialect = sqlitedialect.New()
	case DriverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, errors.NotSupportedf("database driver %q", driver)
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s database", driver)
	}
	if driver == DriverSQLite {
		// in-memory databases only live as long as their connection
		sqldb.SetMaxOpenConns(1)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, errors.Annotatef(err, "connecting to %s database", driver)
	}
	return bun.NewDB(sqldb, dialect), nil
}
