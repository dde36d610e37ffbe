package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
)

func (f *fixture) pendingJob(t *testing.T) *models.GenerationJob {
	t.Helper()

	job := &models.GenerationJob{
		ID:             uuid.Must(uuid.NewRandom()),
		ProductID:      f.product.ID,
		Prompt:         "p",
		AspectRatio:    "1:1",
		Resolution:     "2K",
		RequestedCount: 2,
	}
	err := f.db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		return f.ledger.Create(ctx, &tx, job)
	})
	if err != nil {
		t.Fatalf("ledger Create: %v", err)
	}
	return job
}

func (f *fixture) artifact(t *testing.T, job *models.GenerationJob, ordinal int) *models.GeneratedArtifact {
	t.Helper()

	key := fmt.Sprintf("amber/generated/%s_%d", job.ID, ordinal)
	handle, err := f.storage.Save(context.Background(), filestorage.NewFileInfo(key, ".png", pngBytes(t, uint8(ordinal))))
	if err != nil {
		t.Fatalf("save artifact: %v", err)
	}

	return &models.GeneratedArtifact{
		ID:            uuid.Must(uuid.NewRandom()),
		JobID:         job.ID,
		ProductID:     job.ProductID,
		Ordinal:       ordinal,
		StorageHandle: handle,
		MimeType:      "image/png",
		SizeBytes:     1,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestLedgerHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.pendingJob(t)
	id := job.ID.String()

	if got := f.job(t, id); got.Status != models.JobStatusPending || got.StartedAt != nil {
		t.Fatalf("new job = %s started %v", got.Status, got.StartedAt)
	}

	claimed, err := f.ledger.TransitionToProcessing(ctx, id)
	if err != nil {
		t.Fatalf("TransitionToProcessing: %v", err)
	}
	if claimed.Status != models.JobStatusProcessing || claimed.StartedAt == nil {
		t.Fatalf("claimed = %s started %v", claimed.Status, claimed.StartedAt)
	}

	artifacts := []*models.GeneratedArtifact{f.artifact(t, job, 1), f.artifact(t, job, 2)}
	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusCompleted, "", artifacts); err != nil {
		t.Fatalf("TransitionToTerminal: %v", err)
	}

	done := f.job(t, id)
	if done.Status != models.JobStatusCompleted || done.ArtifactCount != 2 || done.CompletedAt == nil {
		t.Fatalf("completed job = %+v", done)
	}
	if len(done.Artifacts) != 2 || done.Artifacts[0].Ordinal != 1 || done.Artifacts[1].Ordinal != 2 {
		t.Fatalf("artifacts = %+v", done.Artifacts)
	}
	if done.Artifacts[0].URL == "" {
		t.Fatalf("artifact URL not set")
	}
}

func TestLedgerRejectsInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.pendingJob(t)
	id := job.ID.String()

	// pending cannot jump to a terminal state
	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusFailed, "boom", nil); !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("pending -> failed: got %v, want ErrInvalidTransition", err)
	}

	if _, err := f.ledger.TransitionToProcessing(ctx, id); err != nil {
		t.Fatalf("TransitionToProcessing: %v", err)
	}
	if _, err := f.ledger.TransitionToProcessing(ctx, id); !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("second claim: got %v, want ErrInvalidTransition", err)
	}

	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusFailed, "", nil); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("failed without detail: got %v, want ErrInvalidArgument", err)
	}
	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusCompleted, "", nil); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("completed without artifacts: got %v, want ErrInvalidArgument", err)
	}
	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusPending, "", nil); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("pending as terminal: got %v, want ErrInvalidArgument", err)
	}

	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusFailed, "boom", nil); err != nil {
		t.Fatalf("processing -> failed: %v", err)
	}

	// terminal states are final
	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusCompleted, "", []*models.GeneratedArtifact{f.artifact(t, job, 1)}); !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("failed -> completed: got %v, want ErrInvalidTransition", err)
	}

	failed := f.job(t, id)
	if failed.Status != models.JobStatusFailed || failed.ErrorDetail != "boom" || failed.ArtifactCount != 0 {
		t.Fatalf("failed job = %+v", failed)
	}
	arts, _ := f.ledger.Artifacts(ctx, id)
	if len(arts) != 0 {
		t.Fatalf("failed job has %d artifacts", len(arts))
	}

	if _, err := f.ledger.TransitionToProcessing(ctx, uuid.NewString()); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("unknown job: got %v, want ErrNotFound", err)
	}
}

func TestLedgerDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.pendingJob(t)
	id := job.ID.String()

	if _, err := f.ledger.TransitionToProcessing(ctx, id); err != nil {
		t.Fatalf("TransitionToProcessing: %v", err)
	}
	if err := f.ledger.Delete(ctx, id); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("delete processing: got %v, want ErrConflict", err)
	}

	art := f.artifact(t, job, 1)
	if err := f.ledger.TransitionToTerminal(ctx, id, models.JobStatusCompleted, "", []*models.GeneratedArtifact{art}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := f.ledger.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.ledger.Get(ctx, id); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Get after delete: got %v, want ErrNotFound", err)
	}
	if _, err := f.storage.Read(ctx, art.StorageHandle); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("artifact file survived: %v", err)
	}
	if err := f.ledger.Delete(ctx, id); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("second Delete: got %v, want ErrNotFound", err)
	}
}

func TestLedgerListAndGallery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.pendingJob(t)
	time.Sleep(2 * time.Millisecond)
	second := f.pendingJob(t)

	jobs, err := f.ledger.List(ctx, f.pid(), 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Fatalf("List is not newest first")
	}

	for _, job := range []*models.GenerationJob{first, second} {
		if _, err := f.ledger.TransitionToProcessing(ctx, job.ID.String()); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := f.ledger.TransitionToTerminal(ctx, job.ID.String(), models.JobStatusCompleted, "", []*models.GeneratedArtifact{f.artifact(t, job, 1)}); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	gallery, err := f.ledger.Gallery(ctx, f.pid(), 0, 0)
	if err != nil {
		t.Fatalf("Gallery: %v", err)
	}
	if len(gallery) != 2 {
		t.Fatalf("gallery len = %d, want 2", len(gallery))
	}

	if _, err := f.ledger.List(ctx, uuid.NewString(), 0, 0); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("List unknown product: got %v, want ErrNotFound", err)
	}
}

func TestLedgerRecover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stuck := f.pendingJob(t)
	waiting := f.pendingJob(t)
	if _, err := f.ledger.TransitionToProcessing(ctx, stuck.ID.String()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	pending, err := f.ledger.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(pending) != 1 || pending[0] != waiting.ID.String() {
		t.Fatalf("pending = %v, want [%s]", pending, waiting.ID)
	}

	got := f.job(t, stuck.ID.String())
	if got.Status != models.JobStatusFailed || got.ErrorDetail != InterruptedDetail || got.CompletedAt == nil {
		t.Fatalf("stuck job = %+v", got)
	}
}

func TestLedgerDeleteReleasesRemovedReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref := f.addReference(t, 7)
	first := f.submit(t, 1)
	second := f.submit(t, 1)

	if err := f.refs.Remove(ctx, ref.ID.String()); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if err := f.ledger.Delete(ctx, first.ID.String()); err != nil {
		t.Fatalf("Delete first: %v", err)
	}
	if _, err := f.storage.Read(ctx, ref.StorageHandle); err != nil {
		t.Fatalf("file released while a pending job holds it: %v", err)
	}

	if err := f.ledger.Delete(ctx, second.ID.String()); err != nil {
		t.Fatalf("Delete second: %v", err)
	}
	if _, err := f.storage.Read(ctx, ref.StorageHandle); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("file survived the last job: %v", err)
	}
}
