package repository

import (
	"context"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

type IArtifactRepository interface {
	WithTx(tx *bun.Tx) IArtifactRepository
	WithDB(db *bun.DB) IArtifactRepository
	CreateMany(ctx context.Context, artifacts []*models.GeneratedArtifact) error
	ListByJob(ctx context.Context, jobID string) ([]models.GeneratedArtifact, error)
	ListByProduct(ctx context.Context, productID string, limit, offset int) ([]models.GeneratedArtifact, error)
	ListHandlesByProduct(ctx context.Context, productID string) ([]string, error)
	DeleteByJob(ctx context.Context, jobID string) error
	DeleteByProduct(ctx context.Context, productID string) error
}

type ArtifactRepository struct {
	db bun.IDB
}

func NewArtifactRepository(db *bun.DB) IArtifactRepository {
	return &ArtifactRepository{db: db}
}

func (r *ArtifactRepository) CreateMany(ctx context.Context, artifacts []*models.GeneratedArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	_, err := r.db.NewInsert().Model(&artifacts).Exec(ctx)
	return err
}

func (r *ArtifactRepository) ListByJob(ctx context.Context, jobID string) ([]models.GeneratedArtifact, error) {
	artifacts := []models.GeneratedArtifact{}
	err := r.db.NewSelect().
		Model(&artifacts).
		Where("job_id = ?", jobID).
		Order("ordinal ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return artifacts, nil
}

func (r *ArtifactRepository) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]models.GeneratedArtifact, error) {
	artifacts := []models.GeneratedArtifact{}
	err := r.db.NewSelect().
		Model(&artifacts).
		Where("product_id = ?", productID).
		Order("created_at DESC", "job_id", "ordinal ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return artifacts, nil
}

func (r *ArtifactRepository) ListHandlesByProduct(ctx context.Context, productID string) ([]string, error) {
	var handles []string
	err := r.db.NewSelect().
		Model((*models.GeneratedArtifact)(nil)).
		Column("storage_handle").
		Where("product_id = ?", productID).
		Scan(ctx, &handles)
	if err != nil {
		return nil, err
	}

	return handles, nil
}

func (r *ArtifactRepository) DeleteByJob(ctx context.Context, jobID string) error {
	_, err := r.db.NewDelete().Model((*models.GeneratedArtifact)(nil)).Where("job_id = ?", jobID).Exec(ctx)
	return err
}

func (r *ArtifactRepository) DeleteByProduct(ctx context.Context, productID string) error {
	_, err := r.db.NewDelete().Model((*models.GeneratedArtifact)(nil)).Where("product_id = ?", productID).Exec(ctx)
	return err
}

func (r *ArtifactRepository) WithTx(tx *bun.Tx) IArtifactRepository {
	return &ArtifactRepository{db: tx}
}

func (r *ArtifactRepository) WithDB(db *bun.DB) IArtifactRepository {
	return &ArtifactRepository{db: db}
}
