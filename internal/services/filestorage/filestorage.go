package filestorage

import (
	"context"
	"fmt"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/utils/pathutil"
)

// FileInfo describes a file to be stored. Name is the storage key without
// the extension.
type FileInfo struct {
	Name      string
	Extension string
	Content   []byte
}

// FileStorage stores opaque blobs addressed by a relative handle.
type FileStorage interface {
	Save(ctx context.Context, file FileInfo) (string, error)
	Read(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
	PublicURL(handle string) string
}

func NewFileInfo(name string, extension string, content []byte) FileInfo {
	return FileInfo{
		Name:      name,
		Extension: extension,
		Content:   content,
	}
}

func (f FileInfo) Handle() (string, error) {
	return pathutil.CleanKey(f.Name + f.Extension)
}

func NewFileStorage(cfg *config.Config) (FileStorage, error) {
	switch cfg.NormalizeFilesystem() {
	case config.FilesystemLocal:
		return NewLocalFileStorage(cfg)
	case config.FilesystemS3:
		return NewS3FileStorage(context.Background(), cfg)
	}

	return nil, fmt.Errorf("invalid filesystem type %s", cfg.FilesystemType)
}
