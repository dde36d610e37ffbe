package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

const libsqlDriverName = "libsql"

type SQLiteDriver struct {
	db *bun.DB
}

// NewSQLiteDriver opens a local sqlite file through sqliteshim, or a remote
// libSQL database when the dsn uses a libsql:// or https:// scheme.
func NewSQLiteDriver(ctx context.Context, dsn string) (*SQLiteDriver, error) {
	name := sqliteshim.ShimName
	if isRemoteDSN(dsn) {
		name = libsqlDriverName
	}

	sqldb, err := sql.Open(name, dsn)
	if err != nil {
		return nil, err
	}

	if name == sqliteshim.ShimName {
		// sqlite allows a single writer, serialise everything through one connection.
		sqldb.SetMaxOpenConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteDriver{db: db}, nil
}

func (d *SQLiteDriver) GetDB() *bun.DB {
	return d.db
}

func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

func isRemoteDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "https://") || strings.HasPrefix(dsn, "wss://")
}
