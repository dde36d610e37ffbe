package repository

import (
	"context"
	"fmt"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

type IReferenceImageRepository interface {
	WithTx(tx *bun.Tx) IReferenceImageRepository
	WithDB(db *bun.DB) IReferenceImageRepository
	Create(ctx context.Context, image *models.ReferenceImage) (*models.ReferenceImage, error)
	GetByID(ctx context.Context, id string) (*models.ReferenceImage, error)
	ListByProduct(ctx context.Context, productID string) ([]models.ReferenceImage, error)
	CountByProduct(ctx context.Context, productID string) (int, error)
	CountByHandle(ctx context.Context, handle string) (int, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByProduct(ctx context.Context, productID string) error
	CompactAfter(ctx context.Context, productID string, order int) error
	ShiftRange(ctx context.Context, productID string, from, to, delta int) error
	SetOrder(ctx context.Context, id string, order int) error
	ClearPrimary(ctx context.Context, productID string) error
	SetPrimary(ctx context.Context, id string) error
}

type ReferenceImageRepository struct {
	db bun.IDB
}

func NewReferenceImageRepository(db *bun.DB) IReferenceImageRepository {
	return &ReferenceImageRepository{db: db}
}

func (r *ReferenceImageRepository) Create(ctx context.Context, image *models.ReferenceImage) (*models.ReferenceImage, error) {
	if image == nil {
		return nil, fmt.Errorf("reference image model is nil")
	}

	if _, err := r.db.NewInsert().Model(image).Exec(ctx); err != nil {
		return nil, err
	}

	return image, nil
}

func (r *ReferenceImageRepository) GetByID(ctx context.Context, id string) (*models.ReferenceImage, error) {
	var image models.ReferenceImage
	if err := r.db.NewSelect().Model(&image).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &image, nil
}

func (r *ReferenceImageRepository) ListByProduct(ctx context.Context, productID string) ([]models.ReferenceImage, error) {
	images := []models.ReferenceImage{}
	err := r.db.NewSelect().
		Model(&images).
		Where("product_id = ?", productID).
		Order("display_order ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return images, nil
}

func (r *ReferenceImageRepository) CountByProduct(ctx context.Context, productID string) (int, error) {
	return r.db.NewSelect().
		Model((*models.ReferenceImage)(nil)).
		Where("product_id = ?", productID).
		Count(ctx)
}

func (r *ReferenceImageRepository) CountByHandle(ctx context.Context, handle string) (int, error) {
	return r.db.NewSelect().
		Model((*models.ReferenceImage)(nil)).
		Where("storage_handle = ?", handle).
		Count(ctx)
}

func (r *ReferenceImageRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewDelete().Model((*models.ReferenceImage)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return false, err
	}

	return affected(res) > 0, nil
}

func (r *ReferenceImageRepository) DeleteByProduct(ctx context.Context, productID string) error {
	_, err := r.db.NewDelete().Model((*models.ReferenceImage)(nil)).Where("product_id = ?", productID).Exec(ctx)
	return err
}

// CompactAfter closes the gap left by a removed image at the given order.
func (r *ReferenceImageRepository) CompactAfter(ctx context.Context, productID string, order int) error {
	_, err := r.db.NewUpdate().
		Model((*models.ReferenceImage)(nil)).
		Set("display_order = display_order - 1").
		Where("product_id = ?", productID).
		Where("display_order > ?", order).
		Exec(ctx)
	return err
}

// ShiftRange adds delta to the order of every image whose order lies in [from, to].
func (r *ReferenceImageRepository) ShiftRange(ctx context.Context, productID string, from, to, delta int) error {
	_, err := r.db.NewUpdate().
		Model((*models.ReferenceImage)(nil)).
		Set("display_order = display_order + ?", delta).
		Where("product_id = ?", productID).
		Where("display_order >= ?", from).
		Where("display_order <= ?", to).
		Exec(ctx)
	return err
}

func (r *ReferenceImageRepository) SetOrder(ctx context.Context, id string, order int) error {
	_, err := r.db.NewUpdate().
		Model((*models.ReferenceImage)(nil)).
		Set("display_order = ?", order).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *ReferenceImageRepository) ClearPrimary(ctx context.Context, productID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.ReferenceImage)(nil)).
		Set("is_primary = ?", false).
		Where("product_id = ?", productID).
		Where("is_primary = ?", true).
		Exec(ctx)
	return err
}

func (r *ReferenceImageRepository) SetPrimary(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.ReferenceImage)(nil)).
		Set("is_primary = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *ReferenceImageRepository) WithTx(tx *bun.Tx) IReferenceImageRepository {
	return &ReferenceImageRepository{db: tx}
}

func (r *ReferenceImageRepository) WithDB(db *bun.DB) IReferenceImageRepository {
	return &ReferenceImageRepository{db: db}
}
