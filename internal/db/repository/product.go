package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/uptrace/bun"
)

type IProductRepository interface {
	Repository[models.Product]
	WithTx(tx *bun.Tx) IProductRepository
	WithDB(db *bun.DB) IProductRepository
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	GetActiveByID(ctx context.Context, id string) (*models.Product, error)
	LockActiveByID(ctx context.Context, id string) (*models.Product, error)
	LockByID(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context, includeInactive bool, skip, limit int) ([]models.Product, error)
	NextSpecVersion(ctx context.Context, id string) (int, error)
	Deactivate(ctx context.Context, id string) (bool, error)
}

type ProductRepository struct {
	db bun.IDB
}

func NewProductRepository(db *bun.DB) IProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if product == nil {
		return nil, fmt.Errorf("product model is nil")
	}

	if _, err := r.db.NewInsert().Model(product).Exec(ctx); err != nil {
		return nil, err
	}

	return product, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.NewSelect().Model(&product).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *ProductRepository) GetActiveByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.NewSelect().Model(&product).Where("id = ?", id).Where("is_active = ?", true).Scan(ctx); err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *ProductRepository) LockActiveByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	q := r.db.NewSelect().Model(&product).Where("id = ?", id).Where("is_active = ?", true)
	if err := forUpdate(r.db, q).Scan(ctx); err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *ProductRepository) LockByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	q := r.db.NewSelect().Model(&product).Where("id = ?", id)
	if err := forUpdate(r.db, q).Scan(ctx); err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	if err := r.db.NewSelect().Model(&product).Where("slug = ?", slug).Scan(ctx); err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *ProductRepository) List(ctx context.Context, includeInactive bool, skip, limit int) ([]models.Product, error) {
	products := []models.Product{}
	q := r.db.NewSelect().Model(&products).Order("created_at DESC", "id").Offset(skip).Limit(limit)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *ProductRepository) UpdateByID(ctx context.Context, id string, product *models.Product) (*models.Product, error) {
	if product == nil {
		return nil, fmt.Errorf("product model is nil")
	}

	product.UpdatedAt = time.Now().UTC()
	_, err := r.db.NewUpdate().
		Model(product).
		Column("name", "description", "category", "tags", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return product, nil
}

func (r *ProductRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model((*models.Product)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// NextSpecVersion bumps the version counter of the product and returns the new value.
func (r *ProductRepository) NextSpecVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := r.db.NewUpdate().
		Model((*models.Product)(nil)).
		Set("last_spec_version = last_spec_version + 1").
		Where("id = ?", id).
		Returning("last_spec_version").
		Scan(ctx, &version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

func (r *ProductRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Product)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return affected(res) > 0, nil
}

func (r *ProductRepository) WithTx(tx *bun.Tx) IProductRepository {
	return &ProductRepository{db: tx}
}

func (r *ProductRepository) WithDB(db *bun.DB) IProductRepository {
	return &ProductRepository{db: db}
}
