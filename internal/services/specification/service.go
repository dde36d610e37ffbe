package specification

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type CreateOptions struct {
	Note            string
	TemplateVersion string
	AnalysisModel   string
	Confidence      *float64
	ImageCount      int
}

// Service is the version store. Each product has at most one active version
// and version numbers only ever grow.
type Service struct {
	db       *bun.DB
	products repository.IProductRepository
	specs    repository.ISpecificationRepository
	jobs     repository.IJobRepository
	logger   *zap.Logger
}

func NewService(db *bun.DB, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		products: repository.NewProductRepository(db),
		specs:    repository.NewSpecificationRepository(db),
		jobs:     repository.NewJobRepository(db),
		logger:   logger.Named("specification"),
	}
}

// Create stores content as the next version of the product and makes it active.
func (s *Service) Create(ctx context.Context, productID string, content string, opts CreateOptions) (*models.SpecificationVersion, error) {
	pid, err := types.ParseID("product", productID)
	if err != nil {
		return nil, err
	}

	var spec *models.SpecificationVersion
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		spec, err = s.create(ctx, &tx, pid, content, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("specification version created",
		zap.String("product_id", productID),
		zap.String("specification_id", spec.ID.String()),
		zap.Int("version", spec.Version),
	)
	return spec, nil
}

func (s *Service) create(ctx context.Context, tx *bun.Tx, productID uuid.UUID, content string, opts CreateOptions) (*models.SpecificationVersion, error) {
	products := s.products.WithTx(tx)
	specs := s.specs.WithTx(tx)

	if _, err := products.LockActiveByID(ctx, productID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("product %s", productID)
		}
		return nil, err
	}

	version, err := products.NextSpecVersion(ctx, productID.String())
	if err != nil {
		return nil, err
	}

	if err := specs.DeactivateAll(ctx, productID.String()); err != nil {
		return nil, err
	}

	summary := Summarize(content)
	confidence := opts.Confidence
	if confidence == nil {
		confidence = summary.Confidence
	}

	spec := &models.SpecificationVersion{
		ID:                uuid.Must(uuid.NewRandom()),
		ProductID:         productID,
		Version:           version,
		Content:           content,
		ChangeNote:        opts.Note,
		IsActive:          true,
		TemplateVersion:   opts.TemplateVersion,
		AnalysisModel:     opts.AnalysisModel,
		Confidence:        confidence,
		ImageCount:        opts.ImageCount,
		PrimaryDimensions: summary.PrimaryDimensions,
		PrimaryColors:     summary.PrimaryColors,
		MaterialType:      summary.MaterialType,
		CreatedAt:         time.Now().UTC(),
	}

	return specs.Create(ctx, spec)
}

// Revise stores edited content as a new version of the same product. The
// analysis metadata of the source version carries over.
func (s *Service) Revise(ctx context.Context, versionID string, content string, note string) (*models.SpecificationVersion, error) {
	id, err := types.ParseID("specification", versionID)
	if err != nil {
		return nil, err
	}

	var spec *models.SpecificationVersion
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		source, err := s.specs.WithTx(&tx).GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("specification %s", versionID)
			}
			return err
		}

		spec, err = s.create(ctx, &tx, source.ProductID, content, CreateOptions{
			Note:            note,
			TemplateVersion: source.TemplateVersion,
			AnalysisModel:   source.AnalysisModel,
			ImageCount:      source.ImageCount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("specification revised",
		zap.String("source_id", versionID),
		zap.String("specification_id", spec.ID.String()),
		zap.Int("version", spec.Version),
	)
	return spec, nil
}

// Activate makes the given version the active one of its product. Jobs that
// already pinned another version are not affected.
func (s *Service) Activate(ctx context.Context, versionID string) (*models.SpecificationVersion, error) {
	id, err := types.ParseID("specification", versionID)
	if err != nil {
		return nil, err
	}

	var spec *models.SpecificationVersion
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		specs := s.specs.WithTx(&tx)

		var err error
		spec, err = specs.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("specification %s", versionID)
			}
			return err
		}

		if _, err := s.products.WithTx(&tx).LockActiveByID(ctx, spec.ProductID.String()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("product %s", spec.ProductID)
			}
			return err
		}

		if spec.IsActive {
			return nil
		}

		if err := specs.DeactivateAll(ctx, spec.ProductID.String()); err != nil {
			return err
		}
		if err := specs.Activate(ctx, spec.ID.String()); err != nil {
			return err
		}

		spec.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("specification activated",
		zap.String("product_id", spec.ProductID.String()),
		zap.String("specification_id", spec.ID.String()),
		zap.Int("version", spec.Version),
	)
	return spec, nil
}

// GetActive returns the active version, or nil when the product has none.
func (s *Service) GetActive(ctx context.Context, productID string) (*models.SpecificationVersion, error) {
	productID, err := s.ensureProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	spec, err := s.specs.GetActive(ctx, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return spec, nil
}

// List returns every version of the product, newest first.
func (s *Service) List(ctx context.Context, productID string) ([]models.SpecificationVersion, error) {
	productID, err := s.ensureProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	return s.specs.ListByProduct(ctx, productID)
}

func (s *Service) Get(ctx context.Context, versionID string) (*models.SpecificationVersion, error) {
	id, err := types.ParseID("specification", versionID)
	if err != nil {
		return nil, err
	}

	spec, err := s.specs.GetByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("specification %s", versionID)
		}
		return nil, err
	}

	return spec, nil
}

func (s *Service) GetByNumber(ctx context.Context, productID string, version int) (*models.SpecificationVersion, error) {
	productID, err := s.ensureProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	spec, err := s.specs.GetByNumber(ctx, productID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("specification version %d of product %s", version, productID)
		}
		return nil, err
	}

	return spec, nil
}

// Delete removes a version that is neither active nor pinned by any job.
func (s *Service) Delete(ctx context.Context, versionID string) error {
	id, err := types.ParseID("specification", versionID)
	if err != nil {
		return err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		specs := s.specs.WithTx(&tx)

		spec, err := specs.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("specification %s", versionID)
			}
			return err
		}
		if spec.IsActive {
			return types.Conflict("specification %s is the active version", versionID)
		}

		pinned, err := s.jobs.WithTx(&tx).CountBySpecification(ctx, id.String())
		if err != nil {
			return err
		}
		if pinned > 0 {
			return types.Conflict("specification %s is pinned by %d generation jobs", versionID, pinned)
		}

		_, err = specs.DeleteByID(ctx, id.String())
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("specification deleted", zap.String("specification_id", versionID))
	return nil
}

// ensureProduct checks that the product exists and is active, returning its canonical id.
func (s *Service) ensureProduct(ctx context.Context, productID string) (string, error) {
	id, err := types.ParseID("product", productID)
	if err != nil {
		return "", err
	}

	if _, err := s.products.GetActiveByID(ctx, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", types.NotFound("product %s", productID)
		}
		return "", err
	}

	return id.String(), nil
}
