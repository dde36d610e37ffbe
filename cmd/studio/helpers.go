package cmd

import (
	"context"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db"
	"github.com/productstudio/studio/internal/db/drivers"
)

// openDB connects to the configured database. Migrations only run on
// autoMigrate so that the migration commands see the real state.
func openDB(ctx context.Context, autoMigrate bool) (drivers.Driver, error) {
	cfg := *config.GetConfig()
	dbConfig := *cfg.DB
	dbConfig.AutoMigrate = dbConfig.AutoMigrate && autoMigrate
	cfg.DB = &dbConfig

	return db.NewConnection(ctx, &cfg)
}
