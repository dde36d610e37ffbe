package migrations

import (
	"context"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	tables := []interface{}{
		(*models.Product)(nil),
		(*models.SpecificationVersion)(nil),
		(*models.ReferenceImage)(nil),
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS specification_versions_one_active_idx ON specification_versions (product_id) WHERE is_active`,
		`CREATE UNIQUE INDEX IF NOT EXISTS reference_images_one_primary_idx ON reference_images (product_id) WHERE is_primary`,
		`CREATE INDEX IF NOT EXISTS reference_images_product_order_idx ON reference_images (product_id, display_order)`,
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
