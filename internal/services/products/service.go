package products

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type CreateParams struct {
	Slug        string   `json:"slug" msgpack:"slug"`
	Name        string   `json:"name" msgpack:"name"`
	Description string   `json:"description,omitempty" msgpack:"description,omitempty"`
	Category    string   `json:"category,omitempty" msgpack:"category,omitempty"`
	Tags        []string `json:"tags,omitempty" msgpack:"tags,omitempty"`
}

type UpdateParams struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

type Service struct {
	db        *bun.DB
	products  repository.IProductRepository
	specs     repository.ISpecificationRepository
	images    repository.IReferenceImageRepository
	jobs      repository.IJobRepository
	artifacts repository.IArtifactRepository
	storage   filestorage.FileStorage
	logger    *zap.Logger
}

func NewService(db *bun.DB, storage filestorage.FileStorage, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		products:  repository.NewProductRepository(db),
		specs:     repository.NewSpecificationRepository(db),
		images:    repository.NewReferenceImageRepository(db),
		jobs:      repository.NewJobRepository(db),
		artifacts: repository.NewArtifactRepository(db),
		storage:   storage,
		logger:    logger.Named("products"),
	}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Product, error) {
	slug := strings.TrimSpace(params.Slug)
	name := strings.TrimSpace(params.Name)
	if !models.SlugPattern.MatchString(slug) {
		return nil, types.InvalidArgument("slug %q must match %s", params.Slug, models.SlugPattern.String())
	}
	if name == "" {
		return nil, types.InvalidArgument("name is required")
	}

	product := models.NewProduct(slug, name)
	product.Description = params.Description
	product.Category = params.Category
	if params.Tags != nil {
		product.Tags = params.Tags
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		products := s.products.WithTx(&tx)

		if _, err := products.GetBySlug(ctx, slug); err == nil {
			return types.Conflict("slug %q is already taken", slug)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err := products.Create(ctx, product)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.String("product_id", product.ID.String()), zap.String("slug", slug))
	return product, nil
}

func (s *Service) Get(ctx context.Context, productID string) (*models.Product, error) {
	id, err := types.ParseID("product", productID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.GetActiveByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("product %s", productID)
		}
		return nil, err
	}

	return product, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	product, err := s.products.GetBySlug(ctx, slug)
	if err != nil || !product.IsActive {
		if err == nil || errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("product %s", slug)
		}
		return nil, err
	}

	return product, nil
}

func (s *Service) List(ctx context.Context, skip, limit int) ([]models.Product, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	return s.products.List(ctx, false, skip, limit)
}

func (s *Service) Update(ctx context.Context, productID string, params UpdateParams) (*models.Product, error) {
	id, err := types.ParseID("product", productID)
	if err != nil {
		return nil, err
	}

	var product *models.Product
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		products := s.products.WithTx(&tx)

		var err error
		product, err = products.LockActiveByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("product %s", productID)
			}
			return err
		}

		if params.Name != nil {
			name := strings.TrimSpace(*params.Name)
			if name == "" {
				return types.InvalidArgument("name must not be empty")
			}
			product.Name = name
		}
		if params.Description != nil {
			product.Description = *params.Description
		}
		if params.Category != nil {
			product.Category = *params.Category
		}
		if params.Tags != nil {
			product.Tags = *params.Tags
		}

		_, err = products.UpdateByID(ctx, id.String(), product)
		return err
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

// Delete hides the product. With purge every row that belongs to it is removed
// and the stored files are released, which is refused while a job is running.
func (s *Service) Delete(ctx context.Context, productID string, purge bool) error {
	id, err := types.ParseID("product", productID)
	if err != nil {
		return err
	}

	if !purge {
		ok, err := s.products.Deactivate(ctx, id.String())
		if err != nil {
			return err
		}
		if !ok {
			return types.NotFound("product %s", productID)
		}

		s.logger.Info("product deactivated", zap.String("product_id", productID))
		return nil
	}

	var handles []string
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pid := id.String()

		if _, err := s.products.WithTx(&tx).LockByID(ctx, pid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("product %s", productID)
			}
			return err
		}

		running, err := s.jobs.WithTx(&tx).CountByProductAndStatus(ctx, pid, models.JobStatusProcessing)
		if err != nil {
			return err
		}
		if running > 0 {
			return types.Conflict("product %s has %d generation jobs in progress", productID, running)
		}

		artifactHandles, err := s.artifacts.WithTx(&tx).ListHandlesByProduct(ctx, pid)
		if err != nil {
			return err
		}
		images, err := s.images.WithTx(&tx).ListByProduct(ctx, pid)
		if err != nil {
			return err
		}

		handles = append(handles, artifactHandles...)
		for _, img := range images {
			handles = append(handles, img.StorageHandle)
		}

		steps := []func(context.Context, string) error{
			s.artifacts.WithTx(&tx).DeleteByProduct,
			s.jobs.WithTx(&tx).DeleteByProduct,
			s.images.WithTx(&tx).DeleteByProduct,
			s.specs.WithTx(&tx).DeleteByProduct,
			s.products.WithTx(&tx).DeleteByID,
		}
		for _, step := range steps {
			if err := step(ctx, pid); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	released := map[string]bool{}
	for _, handle := range handles {
		if released[handle] {
			continue
		}
		released[handle] = true

		if err := s.storage.Delete(context.WithoutCancel(ctx), handle); err != nil {
			s.logger.Error("failed to release file", zap.String("handle", handle), zap.Error(err))
		}
	}

	s.logger.Info("product purged", zap.String("product_id", productID), zap.Int("files", len(released)))
	return nil
}
