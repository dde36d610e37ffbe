package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

type IJobRepository interface {
	WithTx(tx *bun.Tx) IJobRepository
	WithDB(db *bun.DB) IJobRepository
	Create(ctx context.Context, job *models.GenerationJob) (*models.GenerationJob, error)
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
	GetFullByID(ctx context.Context, id string) (*models.GenerationJob, error)
	ListByProduct(ctx context.Context, productID string, limit, offset int) ([]models.GenerationJob, error)
	ListIDsByStatus(ctx context.Context, status models.JobStatus) ([]string, error)
	CountBySpecification(ctx context.Context, specID string) (int, error)
	CountByProductAndStatus(ctx context.Context, productID string, status models.JobStatus) (int, error)
	CountUnsettledByReferenceHandle(ctx context.Context, handle string) (int, error)
	MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error)
	MarkTerminal(ctx context.Context, id string, status models.JobStatus, errorDetail string, artifactCount int, at time.Time) (bool, error)
	FailAllWithStatus(ctx context.Context, status models.JobStatus, errorDetail string, at time.Time) (int, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteUnlessStatus(ctx context.Context, id string, status models.JobStatus) (bool, error)
	DeleteByProduct(ctx context.Context, productID string) error
}

type JobRepository struct {
	db bun.IDB
}

func NewJobRepository(db *bun.DB) IJobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.GenerationJob) (*models.GenerationJob, error) {
	if job == nil {
		return nil, fmt.Errorf("job model is nil")
	}

	if _, err := r.db.NewInsert().Model(job).Exec(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := r.db.NewSelect().Model(&job).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &job, nil
}

func (r *JobRepository) GetFullByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := r.db.NewSelect().
		Model(&job).
		Relation("Artifacts", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("ordinal ASC")
		}).
		Where("generation_job.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (r *JobRepository) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]models.GenerationJob, error) {
	jobs := []models.GenerationJob{}
	err := r.db.NewSelect().
		Model(&jobs).
		Where("product_id = ?", productID).
		Order("created_at DESC", "id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *JobRepository) ListIDsByStatus(ctx context.Context, status models.JobStatus) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*models.GenerationJob)(nil)).
		Column("id").
		Where("status = ?", status).
		Order("created_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *JobRepository) CountBySpecification(ctx context.Context, specID string) (int, error) {
	return r.db.NewSelect().
		Model((*models.GenerationJob)(nil)).
		Where("specification_id = ?", specID).
		Count(ctx)
}

func (r *JobRepository) CountByProductAndStatus(ctx context.Context, productID string, status models.JobStatus) (int, error) {
	return r.db.NewSelect().
		Model((*models.GenerationJob)(nil)).
		Where("product_id = ?", productID).
		Where("status = ?", status).
		Count(ctx)
}

// CountUnsettledByReferenceHandle counts the pending and processing jobs whose
// reference snapshot contains handle. The snapshot is a JSON array, matched
// on its text form so the query runs on both Postgres and SQLite.
func (r *JobRepository) CountUnsettledByReferenceHandle(ctx context.Context, handle string) (int, error) {
	quoted, err := json.Marshal(handle)
	if err != nil {
		return 0, err
	}

	return r.db.NewSelect().
		Model((*models.GenerationJob)(nil)).
		Where("status IN (?)", bun.In([]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing})).
		Where("CAST(reference_handles AS TEXT) LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(string(quoted))+"%").
		Count(ctx)
}

var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

// MarkProcessing moves a pending job to processing. It reports false when the
// job is missing or no longer pending.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.GenerationJob)(nil)).
		Set("status = ?", models.JobStatusProcessing).
		Set("started_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.JobStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return affected(res) > 0, nil
}

// MarkTerminal moves a processing job to completed or failed.
func (r *JobRepository) MarkTerminal(ctx context.Context, id string, status models.JobStatus, errorDetail string, artifactCount int, at time.Time) (bool, error) {
	q := r.db.NewUpdate().
		Model((*models.GenerationJob)(nil)).
		Set("status = ?", status).
		Set("artifact_count = ?", artifactCount).
		Set("completed_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.JobStatusProcessing)
	if errorDetail != "" {
		q = q.Set("error_detail = ?", errorDetail)
	} else {
		q = q.Set("error_detail = NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}

	return affected(res) > 0, nil
}

func (r *JobRepository) FailAllWithStatus(ctx context.Context, status models.JobStatus, errorDetail string, at time.Time) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*models.GenerationJob)(nil)).
		Set("status = ?", models.JobStatusFailed).
		Set("error_detail = ?", errorDetail).
		Set("completed_at = ?", at).
		Where("status = ?", status).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return int(affected(res)), nil
}

func (r *JobRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewDelete().Model((*models.GenerationJob)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return false, err
	}

	return affected(res) > 0, nil
}

func (r *JobRepository) DeleteUnlessStatus(ctx context.Context, id string, status models.JobStatus) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.GenerationJob)(nil)).
		Where("id = ?", id).
		Where("status <> ?", status).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return affected(res) > 0, nil
}

func (r *JobRepository) DeleteByProduct(ctx context.Context, productID string) error {
	_, err := r.db.NewDelete().Model((*models.GenerationJob)(nil)).Where("product_id = ?", productID).Exec(ctx)
	return err
}

func (r *JobRepository) WithTx(tx *bun.Tx) IJobRepository {
	return &JobRepository{db: tx}
}

func (r *JobRepository) WithDB(db *bun.DB) IJobRepository {
	return &JobRepository{db: db}
}
