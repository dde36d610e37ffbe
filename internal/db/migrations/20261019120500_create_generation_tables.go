package migrations

import (
	"context"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	tables := []interface{}{
		(*models.GenerationJob)(nil),
		(*models.GeneratedArtifact)(nil),
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS generation_jobs_product_created_idx ON generation_jobs (product_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS generation_jobs_status_idx ON generation_jobs (status)`,
		`CREATE INDEX IF NOT EXISTS generated_artifacts_product_created_idx ON generated_artifacts (product_id, created_at)`,
	}

	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if err := createTables(ctx, db, tables...); err != nil {
			return err
		}

		for _, stmt := range indexes {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, tables...)
	})
}
