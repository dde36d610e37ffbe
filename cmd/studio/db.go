package cmd

import (
	"fmt"
	"strings"

	"github.com/productstudio/studio/internal/db/migrations"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the studio database",
}

func init() {
	dbCmd.AddCommand(newMigrationCmd())
}

// withDB opens the database without auto-migration so the migration
// commands act on the schema as it is.
func withDB(fn func(cmd *cobra.Command, db *bun.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		driver, err := openDB(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer driver.Close()

		return fn(cmd, driver.GetDB())
	}
}

func newMigrationCmd() *cobra.Command {
	migrationCmd := &cobra.Command{
		Use:   "migration",
		Short: "Apply, roll back and inspect the catalog and job schema",
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *bun.DB) error {
			group, err := migrations.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			printGroup("migrated to", "schema is up to date", group)
			return nil
		}),
	}

	markAppliedCmd := &cobra.Command{
		Use:   "mark-applied",
		Short: "Record pending migrations as applied without running them",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *bun.DB) error {
			group, err := migrations.Migrate(cmd.Context(), db, migrate.WithNopMigration())
			if err != nil {
				return err
			}
			printGroup("marked as applied", "nothing to mark", group)
			return nil
		}),
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last migration group",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *bun.DB) error {
			group, err := migrations.Rollback(cmd.Context(), db)
			if err != nil {
				return err
			}
			printGroup("rolled back", "there are no groups to roll back", group)
			return nil
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *bun.DB) error {
			status, err := migrations.Report(cmd.Context(), db)
			if err != nil {
				return err
			}

			fmt.Printf("applied (%d): %s\n", len(status.Applied), strings.Join(status.Applied, ", "))
			fmt.Printf("pending (%d): %s\n", len(status.Pending), strings.Join(status.Pending, ", "))
			if status.LastGroup != "" {
				fmt.Printf("last group: %s\n", status.LastGroup)
			}
			return nil
		}),
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the migration bookkeeping tables",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *bun.DB) error {
			return migrate.NewMigrator(db, migrations.Migrations).Init(cmd.Context())
		}),
	}

	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Block migrations, for example during a manual schema change",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *bun.DB) error {
			return migrate.NewMigrator(db, migrations.Migrations).Lock(cmd.Context())
		}),
	}

	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release a lock left by an interrupted migration",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *bun.DB) error {
			return migrate.NewMigrator(db, migrations.Migrations).Unlock(cmd.Context())
		}),
	}

	migrationCmd.AddCommand(initCmd, migrateCmd, rollbackCmd, statusCmd, markAppliedCmd, lockCmd, unlockCmd)
	return migrationCmd
}

func printGroup(done, empty string, group *migrate.MigrationGroup) {
	if group == nil || group.IsZero() {
		fmt.Println(empty)
		return
	}
	fmt.Printf("%s %s\n", done, group)
}
