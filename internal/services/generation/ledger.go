package generation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/services/references"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const (
	DefaultJobListLimit = 50
	DefaultGalleryLimit = 100
	MaxListLimit        = 500

	InterruptedDetail = "interrupted: executor restarted"
)

// Ledger owns the generation job records and their state machine:
// pending -> processing -> completed | failed. Every transition is a guarded
// update, so a job never moves backwards or leaves a terminal state.
type Ledger struct {
	db        *bun.DB
	products  repository.IProductRepository
	jobs      repository.IJobRepository
	artifacts repository.IArtifactRepository
	storage   filestorage.FileStorage
	releaser  *references.Releaser
	logger    *zap.Logger
}

func NewLedger(db *bun.DB, storage filestorage.FileStorage, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:        db,
		products:  repository.NewProductRepository(db),
		jobs:      repository.NewJobRepository(db),
		artifacts: repository.NewArtifactRepository(db),
		storage:   storage,
		releaser:  references.NewReleaser(db, storage, logger),
		logger:    logger.Named("ledger"),
	}
}

// Create writes a pending job inside the caller's transaction.
func (l *Ledger) Create(ctx context.Context, tx *bun.Tx, job *models.GenerationJob) error {
	job.Status = models.JobStatusPending
	job.ArtifactCount = 0
	job.StartedAt = nil
	job.CompletedAt = nil
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := l.jobs.WithTx(tx).Create(ctx, job)
	return err
}

// TransitionToProcessing claims a pending job and returns it.
func (l *Ledger) TransitionToProcessing(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	id, err := types.ParseID("generation job", jobID)
	if err != nil {
		return nil, err
	}

	ok, err := l.jobs.MarkProcessing(ctx, id.String(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, l.rejected(ctx, l.jobs, id.String(), models.JobStatusProcessing)
	}

	return l.jobs.GetByID(ctx, id.String())
}

// TransitionToTerminal finishes a processing job. A completed job gets its
// artifact rows in the same transaction; a failed job gets none. Snapshot
// files whose reference image was removed meanwhile are released afterwards.
func (l *Ledger) TransitionToTerminal(ctx context.Context, jobID string, status models.JobStatus, errorDetail string, artifacts []*models.GeneratedArtifact) error {
	id, err := types.ParseID("generation job", jobID)
	if err != nil {
		return err
	}

	switch status {
	case models.JobStatusCompleted:
		if len(artifacts) == 0 {
			return types.InvalidArgument("a completed job needs at least one artifact")
		}
		errorDetail = ""
	case models.JobStatusFailed:
		if errorDetail == "" {
			return types.InvalidArgument("a failed job needs an error detail")
		}
		if len(artifacts) > 0 {
			return types.InvalidArgument("a failed job cannot have artifacts")
		}
	default:
		return types.InvalidArgument("%s is not a terminal status", status)
	}

	var snapshot []string
	err = l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		jobs := l.jobs.WithTx(&tx)

		ok, err := jobs.MarkTerminal(ctx, id.String(), status, errorDetail, len(artifacts), time.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return l.rejected(ctx, jobs, id.String(), status)
		}

		job, err := jobs.GetByID(ctx, id.String())
		if err != nil {
			return err
		}
		snapshot = job.ReferenceHandles

		if len(artifacts) == 0 {
			return nil
		}
		return l.artifacts.WithTx(&tx).CreateMany(ctx, artifacts)
	})
	if err != nil {
		return err
	}

	l.releaser.Release(context.WithoutCancel(ctx), snapshot...)
	return nil
}

// rejected explains why a guarded transition matched no row.
func (l *Ledger) rejected(ctx context.Context, jobs repository.IJobRepository, id string, target models.JobStatus) error {
	job, err := jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.NotFound("generation job %s", id)
		}
		return err
	}

	return types.InvalidTransition("generation job %s is %s, cannot move to %s", id, job.Status, target)
}

// Get returns the job, with its artifacts once it has completed.
func (l *Ledger) Get(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	id, err := types.ParseID("generation job", jobID)
	if err != nil {
		return nil, err
	}

	job, err := l.jobs.GetFullByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("generation job %s", jobID)
		}
		return nil, err
	}

	if job.Status != models.JobStatusCompleted {
		job.Artifacts = nil
	}
	for _, artifact := range job.Artifacts {
		artifact.URL = l.storage.PublicURL(artifact.StorageHandle)
	}

	return job, nil
}

// List returns the product's jobs, most recent first.
func (l *Ledger) List(ctx context.Context, productID string, limit, offset int) ([]models.GenerationJob, error) {
	pid, err := l.ensureProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	limit, offset = window(limit, offset, DefaultJobListLimit)
	return l.jobs.ListByProduct(ctx, pid, limit, offset)
}

// Gallery returns every artifact of the product, newest first.
func (l *Ledger) Gallery(ctx context.Context, productID string, limit, offset int) ([]models.GeneratedArtifact, error) {
	pid, err := l.ensureProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	limit, offset = window(limit, offset, DefaultGalleryLimit)
	artifacts, err := l.artifacts.ListByProduct(ctx, pid, limit, offset)
	if err != nil {
		return nil, err
	}

	return l.withURLs(artifacts), nil
}

// Artifacts returns the artifacts of one job ordered by ordinal.
func (l *Ledger) Artifacts(ctx context.Context, jobID string) ([]models.GeneratedArtifact, error) {
	id, err := types.ParseID("generation job", jobID)
	if err != nil {
		return nil, err
	}

	if _, err := l.jobs.GetByID(ctx, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("generation job %s", jobID)
		}
		return nil, err
	}

	artifacts, err := l.artifacts.ListByJob(ctx, id.String())
	if err != nil {
		return nil, err
	}

	return l.withURLs(artifacts), nil
}

// Delete removes a job that is not processing together with its artifacts,
// then releases the artifact files and any snapshot file nothing else uses.
func (l *Ledger) Delete(ctx context.Context, jobID string) error {
	id, err := types.ParseID("generation job", jobID)
	if err != nil {
		return err
	}

	var handles, snapshot []string
	err = l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		jobs := l.jobs.WithTx(&tx)
		artifacts := l.artifacts.WithTx(&tx)

		job, err := jobs.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("generation job %s", jobID)
			}
			return err
		}
		if job.Status == models.JobStatusProcessing {
			return types.Conflict("generation job %s is processing", jobID)
		}
		snapshot = job.ReferenceHandles

		rows, err := artifacts.ListByJob(ctx, id.String())
		if err != nil {
			return err
		}
		for _, row := range rows {
			handles = append(handles, row.StorageHandle)
		}

		if err := artifacts.DeleteByJob(ctx, id.String()); err != nil {
			return err
		}

		deleted, err := jobs.DeleteUnlessStatus(ctx, id.String(), models.JobStatusProcessing)
		if err != nil {
			return err
		}
		if !deleted {
			return types.Conflict("generation job %s is processing", jobID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, handle := range handles {
		if err := l.storage.Delete(context.WithoutCancel(ctx), handle); err != nil {
			l.logger.Error("failed to release artifact", zap.String("handle", handle), zap.Error(err))
		}
	}

	l.releaser.Release(context.WithoutCancel(ctx), snapshot...)

	l.logger.Info("generation job deleted", zap.String("job_id", jobID), zap.Int("artifacts", len(handles)))
	return nil
}

// Recover fails the jobs a previous process left in processing and returns
// the ids of the pending jobs that still need a dispatch.
func (l *Ledger) Recover(ctx context.Context) ([]string, error) {
	stale, err := l.jobs.ListIDsByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return nil, err
	}
	var snapshot []string
	for _, id := range stale {
		job, err := l.jobs.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, job.ReferenceHandles...)
	}

	failed, err := l.jobs.FailAllWithStatus(ctx, models.JobStatusProcessing, InterruptedDetail, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if failed > 0 {
		l.logger.Warn("failed interrupted generation jobs", zap.Int("count", failed))
		l.releaser.Release(ctx, snapshot...)
	}

	return l.jobs.ListIDsByStatus(ctx, models.JobStatusPending)
}

func (l *Ledger) withURLs(artifacts []models.GeneratedArtifact) []models.GeneratedArtifact {
	for i := range artifacts {
		artifacts[i].URL = l.storage.PublicURL(artifacts[i].StorageHandle)
	}

	return artifacts
}

func (l *Ledger) ensureProduct(ctx context.Context, productID string) (string, error) {
	id, err := types.ParseID("product", productID)
	if err != nil {
		return "", err
	}

	if _, err := l.products.GetActiveByID(ctx, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", types.NotFound("product %s", productID)
		}
		return "", err
	}

	return id.String(), nil
}

func window(limit, offset, fallback int) (int, int) {
	if limit <= 0 {
		limit = fallback
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
