package repository

import (
	"context"
	"fmt"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

type ISpecificationRepository interface {
	WithTx(tx *bun.Tx) ISpecificationRepository
	WithDB(db *bun.DB) ISpecificationRepository
	Create(ctx context.Context, spec *models.SpecificationVersion) (*models.SpecificationVersion, error)
	GetByID(ctx context.Context, id string) (*models.SpecificationVersion, error)
	GetByNumber(ctx context.Context, productID string, version int) (*models.SpecificationVersion, error)
	GetActive(ctx context.Context, productID string) (*models.SpecificationVersion, error)
	ListByProduct(ctx context.Context, productID string) ([]models.SpecificationVersion, error)
	DeactivateAll(ctx context.Context, productID string) error
	Activate(ctx context.Context, id string) error
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByProduct(ctx context.Context, productID string) error
}

type SpecificationRepository struct {
	db bun.IDB
}

func NewSpecificationRepository(db *bun.DB) ISpecificationRepository {
	return &SpecificationRepository{db: db}
}

func (r *SpecificationRepository) Create(ctx context.Context, spec *models.SpecificationVersion) (*models.SpecificationVersion, error) {
	if spec == nil {
		return nil, fmt.Errorf("specification model is nil")
	}

	if _, err := r.db.NewInsert().Model(spec).Exec(ctx); err != nil {
		return nil, err
	}

	return spec, nil
}

func (r *SpecificationRepository) GetByID(ctx context.Context, id string) (*models.SpecificationVersion, error) {
	var spec models.SpecificationVersion
	if err := r.db.NewSelect().Model(&spec).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &spec, nil
}

func (r *SpecificationRepository) GetByNumber(ctx context.Context, productID string, version int) (*models.SpecificationVersion, error) {
	var spec models.SpecificationVersion
	err := r.db.NewSelect().
		Model(&spec).
		Where("product_id = ?", productID).
		Where("version = ?", version).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return &spec, nil
}

func (r *SpecificationRepository) GetActive(ctx context.Context, productID string) (*models.SpecificationVersion, error) {
	var spec models.SpecificationVersion
	err := r.db.NewSelect().
		Model(&spec).
		Where("product_id = ?", productID).
		Where("is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return &spec, nil
}

func (r *SpecificationRepository) ListByProduct(ctx context.Context, productID string) ([]models.SpecificationVersion, error) {
	specs := []models.SpecificationVersion{}
	err := r.db.NewSelect().
		Model(&specs).
		Where("product_id = ?", productID).
		Order("version DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return specs, nil
}

func (r *SpecificationRepository) DeactivateAll(ctx context.Context, productID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.SpecificationVersion)(nil)).
		Set("is_active = ?", false).
		Where("product_id = ?", productID).
		Where("is_active = ?", true).
		Exec(ctx)
	return err
}

func (r *SpecificationRepository) Activate(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.SpecificationVersion)(nil)).
		Set("is_active = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *SpecificationRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewDelete().Model((*models.SpecificationVersion)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return false, err
	}

	return affected(res) > 0, nil
}

func (r *SpecificationRepository) DeleteByProduct(ctx context.Context, productID string) error {
	_, err := r.db.NewDelete().Model((*models.SpecificationVersion)(nil)).Where("product_id = ?", productID).Exec(ctx)
	return err
}

func (r *SpecificationRepository) WithTx(tx *bun.Tx) ISpecificationRepository {
	return &SpecificationRepository{db: tx}
}

func (r *SpecificationRepository) WithDB(db *bun.DB) ISpecificationRepository {
	return &SpecificationRepository{db: db}
}
