package references

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sort"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/types"
	"github.com/productstudio/studio/internal/utils/hashutil"
	"github.com/productstudio/studio/internal/utils/imageutil"
	"github.com/productstudio/studio/internal/utils/pathutil"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

var allowedMimeTypes = []string{"image/jpeg", "image/png", "image/webp"}

type Upload struct {
	Filename string
	Content  []byte
}

// Service manages the reference image set of each product. The set is
// bounded, its display order is dense and starts at 0, and at most one
// image is primary.
type Service struct {
	db       *bun.DB
	products repository.IProductRepository
	images   repository.IReferenceImageRepository
	storage  filestorage.FileStorage
	releaser *Releaser
	limit    int
	maxBytes int64
	logger   *zap.Logger
}

func NewService(db *bun.DB, storage filestorage.FileStorage, cfg *config.ReferenceConfig, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		products: repository.NewProductRepository(db),
		images:   repository.NewReferenceImageRepository(db),
		storage:  storage,
		releaser: NewReleaser(db, storage, logger),
		limit:    cfg.Limit,
		maxBytes: cfg.MaxUploadBytes,
		logger:   logger.Named("references"),
	}
}

func (s *Service) Limit() int {
	return s.limit
}

// Add validates and stores an upload, then appends it to the product's set.
// The set is left unchanged when it is already full.
func (s *Service) Add(ctx context.Context, productID string, upload Upload) (*models.ReferenceImage, error) {
	pid, err := types.ParseID("product", productID)
	if err != nil {
		return nil, err
	}

	if len(upload.Content) == 0 {
		return nil, types.InvalidArgument("empty upload")
	}
	if s.maxBytes > 0 && int64(len(upload.Content)) > s.maxBytes {
		return nil, types.InvalidArgument("upload of %d bytes exceeds the %d byte limit", len(upload.Content), s.maxBytes)
	}

	mtype := mimetype.Detect(upload.Content)
	if !mimetype.EqualsAny(mtype.String(), allowedMimeTypes...) {
		return nil, types.InvalidArgument("unsupported image type %s", mtype.String())
	}

	width, height, _, err := imageutil.DecodeConfig(upload.Content)
	if err != nil {
		return nil, types.InvalidArgument("%v", err)
	}

	product, err := s.products.GetActiveByID(ctx, pid.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("product %s", productID)
		}
		return nil, err
	}

	// Fail fast before touching storage. The bound is checked again under the lock.
	count, err := s.images.CountByProduct(ctx, pid.String())
	if err != nil {
		return nil, err
	}
	if count >= s.limit {
		return nil, types.LimitExceeded("product %s already has %d reference images", productID, s.limit)
	}

	key := pathutil.ReferenceKey(product.Slug, hashutil.Blake3Hash(upload.Content), "")
	handle, err := s.storage.Save(ctx, filestorage.NewFileInfo(key, mtype.Extension(), upload.Content))
	if err != nil {
		return nil, types.ExternalFailure("store reference image", err)
	}

	filename := filepath.Base(upload.Filename)
	if upload.Filename == "" {
		filename = filepath.Base(handle)
	}

	image := &models.ReferenceImage{
		ID:            uuid.Must(uuid.NewRandom()),
		ProductID:     pid,
		StorageHandle: handle,
		Filename:      filename,
		MimeType:      mtype.String(),
		SizeBytes:     int64(len(upload.Content)),
		Width:         width,
		Height:        height,
		UploadedAt:    time.Now().UTC(),
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.products.WithTx(&tx).LockActiveByID(ctx, pid.String()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("product %s", productID)
			}
			return err
		}

		images := s.images.WithTx(&tx)
		count, err := images.CountByProduct(ctx, pid.String())
		if err != nil {
			return err
		}
		if count >= s.limit {
			return types.LimitExceeded("product %s already has %d reference images", productID, s.limit)
		}

		image.DisplayOrder = count
		_, err = images.Create(ctx, image)
		return err
	})
	if err != nil {
		s.releaser.Release(context.WithoutCancel(ctx), handle)
		return nil, err
	}

	image.URL = s.storage.PublicURL(image.StorageHandle)
	s.logger.Info("reference image added",
		zap.String("product_id", productID),
		zap.String("image_id", image.ID.String()),
		zap.Int("display_order", image.DisplayOrder),
	)
	return image, nil
}

// Remove deletes the image and closes the gap in the display order.
func (s *Service) Remove(ctx context.Context, imageID string) error {
	id, err := types.ParseID("reference image", imageID)
	if err != nil {
		return err
	}

	var removed *models.ReferenceImage
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		images := s.images.WithTx(&tx)

		image, err := images.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("reference image %s", imageID)
			}
			return err
		}

		if _, err := s.products.WithTx(&tx).LockByID(ctx, image.ProductID.String()); err != nil {
			return err
		}

		deleted, err := images.DeleteByID(ctx, id.String())
		if err != nil {
			return err
		}
		if !deleted {
			return types.NotFound("reference image %s", imageID)
		}

		if err := images.CompactAfter(ctx, image.ProductID.String(), image.DisplayOrder); err != nil {
			return err
		}

		removed = image
		return nil
	})
	if err != nil {
		return err
	}

	s.releaser.Release(context.WithoutCancel(ctx), removed.StorageHandle)
	s.logger.Info("reference image removed",
		zap.String("product_id", removed.ProductID.String()),
		zap.String("image_id", imageID),
	)
	return nil
}

// List returns the set ordered by display order.
func (s *Service) List(ctx context.Context, productID string) ([]models.ReferenceImage, error) {
	pid, err := s.ensureProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	images, err := s.images.ListByProduct(ctx, pid)
	if err != nil {
		return nil, err
	}

	return s.withURLs(images), nil
}

// Selected returns the snapshot used for generation, primary image first.
func (s *Service) Selected(ctx context.Context, productID string) ([]models.ReferenceImage, error) {
	images, err := s.List(ctx, productID)
	if err != nil {
		return nil, err
	}

	return PrimaryFirst(images), nil
}

// SetPrimary makes the image the only primary one of its product.
func (s *Service) SetPrimary(ctx context.Context, imageID string) (*models.ReferenceImage, error) {
	id, err := types.ParseID("reference image", imageID)
	if err != nil {
		return nil, err
	}

	var image *models.ReferenceImage
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		images := s.images.WithTx(&tx)

		var err error
		image, err = images.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("reference image %s", imageID)
			}
			return err
		}

		if _, err := s.products.WithTx(&tx).LockByID(ctx, image.ProductID.String()); err != nil {
			return err
		}

		if err := images.ClearPrimary(ctx, image.ProductID.String()); err != nil {
			return err
		}
		if err := images.SetPrimary(ctx, id.String()); err != nil {
			return err
		}

		image.IsPrimary = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	image.URL = s.storage.PublicURL(image.StorageHandle)
	s.logger.Info("primary reference image set",
		zap.String("product_id", image.ProductID.String()),
		zap.String("image_id", imageID),
	)
	return image, nil
}

// Move places the image at order and shifts its siblings so the sequence stays dense.
func (s *Service) Move(ctx context.Context, imageID string, order int) (*models.ReferenceImage, error) {
	id, err := types.ParseID("reference image", imageID)
	if err != nil {
		return nil, err
	}

	var image *models.ReferenceImage
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		images := s.images.WithTx(&tx)

		var err error
		image, err = images.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("reference image %s", imageID)
			}
			return err
		}

		productID := image.ProductID.String()
		if _, err := s.products.WithTx(&tx).LockByID(ctx, productID); err != nil {
			return err
		}

		count, err := images.CountByProduct(ctx, productID)
		if err != nil {
			return err
		}
		if order < 0 || order >= count {
			return types.InvalidArgument("display order %d is outside 0..%d", order, count-1)
		}

		current := image.DisplayOrder
		switch {
		case order == current:
			return nil
		case order < current:
			err = images.ShiftRange(ctx, productID, order, current-1, 1)
		default:
			err = images.ShiftRange(ctx, productID, current+1, order, -1)
		}
		if err != nil {
			return err
		}

		if err := images.SetOrder(ctx, id.String(), order); err != nil {
			return err
		}

		image.DisplayOrder = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	image.URL = s.storage.PublicURL(image.StorageHandle)
	return image, nil
}

// PrimaryFirst orders a set for generation: the primary image, then display order.
func PrimaryFirst(images []models.ReferenceImage) []models.ReferenceImage {
	out := make([]models.ReferenceImage, len(images))
	copy(out, images)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].DisplayOrder < out[j].DisplayOrder
	})

	return out
}

func (s *Service) withURLs(images []models.ReferenceImage) []models.ReferenceImage {
	for i := range images {
		images[i].URL = s.storage.PublicURL(images[i].StorageHandle)
	}

	return images
}

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
