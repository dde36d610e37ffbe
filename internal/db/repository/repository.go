package repository

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type Repository[T any] interface {
	Create(ctx context.Context, arg *T) (*T, error)
	GetByID(ctx context.Context, id string) (*T, error)
	UpdateByID(ctx context.Context, id string, arg *T) (*T, error)
	DeleteByID(ctx context.Context, id string) error
}

// forUpdate adds a row lock on dialects that support one. sqlite serialises
// writers on its own.
func forUpdate(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}

	return q
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}

	return n
}
