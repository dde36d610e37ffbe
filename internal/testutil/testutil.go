// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db/drivers"
	"github.com/productstudio/studio/internal/db/migrations"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/services/filestorage"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewDB opens a migrated sqlite database in a temp dir.
func NewDB(t testing.TB) *bun.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "studio.db")
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	if err := migrations.Apply(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}

type driver struct {
	db *bun.DB
}

func (d driver) GetDB() *bun.DB { return d.db }

// Close is a no-op, NewDB already closes the database on cleanup.
func (d driver) Close() error { return nil }

// NewDriver wraps NewDB for callers that take a drivers.Driver.
func NewDriver(t testing.TB) drivers.Driver {
	t.Helper()
	return driver{db: NewDB(t)}
}

// NewConfig returns a test config whose directories exist.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	cfg := config.NewTestConfig(t.TempDir())
	for _, dir := range []string{cfg.AssetsDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	return cfg
}

func NewStorage(t testing.TB, cfg *config.Config) filestorage.FileStorage {
	t.Helper()

	storage, err := filestorage.NewLocalFileStorage(cfg)
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	return storage
}

func CreateProduct(t testing.TB, db *bun.DB, slug string) *models.Product {
	t.Helper()

	product, err := repository.NewProductRepository(db).Create(context.Background(), models.NewProduct(slug, slug))
	if err != nil {
		t.Fatalf("create product %s: %v", slug, err)
	}

	return product
}

// PNG returns an encoded w x h image filled with shade.
func PNG(t testing.TB, w, h int, shade uint8) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	return buf.Bytes()
}
