package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// Apply creates the bookkeeping tables and runs every pending migration.
func Apply(ctx context.Context, db *bun.DB) error {
	_, err := Migrate(ctx, db)
	return err
}

// Migrate runs the pending migrations under the migration lock and returns
// the group it applied, which is empty when the schema is current.
func Migrate(ctx context.Context, db *bun.DB, opts ...migrate.MigrationOption) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}

	if err := migrator.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return group, nil
}

// Rollback reverts the last applied group under the migration lock.
func Rollback(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to roll back: %w", err)
	}

	return group, nil
}

type Status struct {
	Applied   []string
	Pending   []string
	LastGroup string
}

// Report lists which catalog and job migrations ran and which are pending.
func Report(ctx context.Context, db *bun.DB) (*Status, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{}
	for _, m := range ms {
		if m.IsApplied() {
			status.Applied = append(status.Applied, m.Name)
		} else {
			status.Pending = append(status.Pending, m.Name)
		}
	}
	if last := ms.LastGroup(); !last.IsZero() {
		status.LastGroup = last.String()
	}

	return status, nil
}

func createTables(ctx context.Context, db *bun.DB, tables ...interface{}) error {
	for _, table := range tables {
		if _, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

func dropTables(ctx context.Context, db *bun.DB, tables ...interface{}) error {
	for _, table := range tables {
		if _, err := db.NewDropTable().Model(table).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	return nil
}
