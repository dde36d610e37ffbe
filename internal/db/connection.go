package db

import (
	"context"
	"fmt"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db/drivers"
	"github.com/productstudio/studio/internal/db/migrations"

	"github.com/uptrace/bun/extra/bundebug"
)

func NewConnection(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	var (
		driver drivers.Driver
		err    error
	)

	switch cfg.DB.Driver {
	case config.DriverSQLite:
		driver, err = drivers.NewSQLiteDriver(ctx, cfg.DB.DSN)
	case config.DriverPostgres:
		driver, err = drivers.NewPGDriver(ctx, cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("invalid database driver: %s", cfg.DB.Driver)
	}
	if err != nil {
		return nil, err
	}

	driver.GetDB().AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(cfg.DB.Debug),
		bundebug.WithVerbose(cfg.DB.Debug),
		bundebug.FromEnv("BUNDEBUG"),
	))

	if cfg.DB.AutoMigrate {
		if err := migrations.Apply(ctx, driver.GetDB()); err != nil {
			driver.Close()
			return nil, err
		}
	}

	return driver, nil
}
