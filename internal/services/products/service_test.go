package products

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/testutil"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *bun.DB, filestorage.FileStorage) {
	t.Helper()

	cfg := testutil.NewConfig(t)
	db := testutil.NewDB(t)
	storage := testutil.NewStorage(t, cfg)
	return NewService(db, storage, zap.NewNop()), db, storage
}

func TestCreateValidatesSlug(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	for _, slug := range []string{"", "Upper", "has space", "dots.not.allowed"} {
		if _, err := svc.Create(ctx, CreateParams{Slug: slug, Name: "x"}); !errors.Is(err, types.ErrInvalidArgument) {
			t.Fatalf("slug %q: got %v, want ErrInvalidArgument", slug, err)
		}
	}

	product, err := svc.Create(ctx, CreateParams{Slug: "amber_bottle-2", Name: "Amber Bottle", Tags: []string{"glass"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !product.IsActive || product.Tags[0] != "glass" {
		t.Fatalf("product = %+v", product)
	}

	if _, err := svc.Create(ctx, CreateParams{Slug: "amber_bottle-2", Name: "dup"}); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("duplicate slug: got %v, want ErrConflict", err)
	}
}

func TestUpdateAndList(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	product, _ := svc.Create(ctx, CreateParams{Slug: "lamp", Name: "Lamp"})
	name := "Desk Lamp"
	tags := []string{"light", "desk"}
	updated, err := svc.Update(ctx, product.ID.String(), UpdateParams{Name: &name, Tags: &tags})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Desk Lamp" || len(updated.Tags) != 2 {
		t.Fatalf("updated = %+v", updated)
	}

	got, err := svc.Get(ctx, product.ID.String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Desk Lamp" || len(got.Tags) != 2 {
		t.Fatalf("stored = %+v", got)
	}

	list, err := svc.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List len = %d, want 1", len(list))
	}
}

func TestSoftDelete(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	product, _ := svc.Create(ctx, CreateParams{Slug: "chair", Name: "Chair"})
	if err := svc.Delete(ctx, product.ID.String(), false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.Get(ctx, product.ID.String()); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, product.ID.String(), false); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("second Delete: got %v, want ErrNotFound", err)
	}
	list, _ := svc.List(ctx, 0, 10)
	if len(list) != 0 {
		t.Fatalf("inactive product listed")
	}
}

func TestPurge(t *testing.T) {
	svc, db, storage := newService(t)
	ctx := context.Background()

	product, _ := svc.Create(ctx, CreateParams{Slug: "mug", Name: "Mug"})
	handle, err := storage.Save(ctx, filestorage.NewFileInfo("mug/generated/x_1", ".png", []byte("img")))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	job := &models.GenerationJob{
		ID:             uuid.Must(uuid.NewRandom()),
		ProductID:      product.ID,
		Prompt:         "p",
		AspectRatio:    "1:1",
		Resolution:     "2K",
		RequestedCount: 1,
		Status:         models.JobStatusProcessing,
		CreatedAt:      time.Now().UTC(),
	}
	jobs := repository.NewJobRepository(db)
	if _, err := jobs.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.Delete(ctx, product.ID.String(), true); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("purge with running job: got %v, want ErrConflict", err)
	}

	if ok, err := jobs.MarkTerminal(ctx, job.ID.String(), models.JobStatusCompleted, "", 1, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("complete job: %v %v", ok, err)
	}
	artifact := &models.GeneratedArtifact{
		ID:            uuid.Must(uuid.NewRandom()),
		JobID:         job.ID,
		ProductID:     product.ID,
		Ordinal:       1,
		StorageHandle: handle,
		MimeType:      "image/png",
		SizeBytes:     3,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repository.NewArtifactRepository(db).CreateMany(ctx, []*models.GeneratedArtifact{artifact}); err != nil {
		t.Fatalf("create artifact: %v", err)
	}

	if err := svc.Delete(ctx, product.ID.String(), true); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if _, err := jobs.GetByID(ctx, job.ID.String()); err == nil {
		t.Fatalf("job survived purge")
	}
	if _, err := storage.Read(ctx, handle); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("artifact file survived purge: %v", err)
	}
	if _, err := repository.NewProductRepository(db).GetByID(ctx, product.ID.String()); err == nil {
		t.Fatalf("product row survived purge")
	}
}
