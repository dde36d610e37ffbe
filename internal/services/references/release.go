package references

import (
	"context"

	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Releaser deletes stored reference files once nothing points at them.
// A file stays while a reference row uses its handle, which happens for
// identical uploads, or while a pending or processing job holds it in its
// reference snapshot.
type Releaser struct {
	images  repository.IReferenceImageRepository
	jobs    repository.IJobRepository
	storage filestorage.FileStorage
	logger  *zap.Logger
}

func NewReleaser(db *bun.DB, storage filestorage.FileStorage, logger *zap.Logger) *Releaser {
	return &Releaser{
		images:  repository.NewReferenceImageRepository(db),
		jobs:    repository.NewJobRepository(db),
		storage: storage,
		logger:  logger.Named("releaser"),
	}
}

// Release deletes every handle that is no longer in use. Failures are
// logged; a file left behind is harmless.
func (r *Releaser) Release(ctx context.Context, handles ...string) {
	seen := make(map[string]bool, len(handles))
	for _, handle := range handles {
		if handle == "" || seen[handle] {
			continue
		}
		seen[handle] = true

		inUse, err := r.inUse(ctx, handle)
		if err != nil {
			r.logger.Error("failed to count handle users", zap.String("handle", handle), zap.Error(err))
			continue
		}
		if inUse {
			r.logger.Debug("reference file kept", zap.String("handle", handle))
			continue
		}

		if err := r.storage.Delete(ctx, handle); err != nil {
			r.logger.Error("failed to release reference image", zap.String("handle", handle), zap.Error(err))
		}
	}
}

func (r *Releaser) inUse(ctx context.Context, handle string) (bool, error) {
	rows, err := r.images.CountByHandle(ctx, handle)
	if err != nil || rows > 0 {
		return rows > 0, err
	}

	jobs, err := r.jobs.CountUnsettledByReferenceHandle(ctx, handle)
	if err != nil {
		return false, err
	}

	return jobs > 0, nil
}
