package migrations

import (
	"context"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return createTables(ctx, db, (*models.APIKey)(nil))
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, (*models.APIKey)(nil))
	})
}
