package filestorage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/types"
	"github.com/productstudio/studio/internal/utils/pathutil"
)

type LocalFileStorage struct {
	assetsDir string
	baseURL   string
}

func NewLocalFileStorage(cfg *config.Config) (*LocalFileStorage, error) {
	if cfg.NormalizeFilesystem() != config.FilesystemLocal {
		return nil, fmt.Errorf("filesystem is not local")
	}
	if cfg.AssetsDir == "" {
		return nil, fmt.Errorf("assets directory is not set")
	}

	return &LocalFileStorage{
		assetsDir: cfg.AssetsDir,
		baseURL:   fmt.Sprintf("http://%s:%d/files", cfg.Host, cfg.Port),
	}, nil
}

func (u *LocalFileStorage) Save(ctx context.Context, file FileInfo) (string, error) {
	handle, err := file.Handle()
	if err != nil {
		return "", err
	}

	filedest := filepath.Join(u.assetsDir, filepath.FromSlash(handle))
	if err := os.MkdirAll(filepath.Dir(filedest), os.ModePerm); err != nil {
		return "", err
	}

	// Write to a temp file first so readers never observe a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(filedest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(file.Content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save content to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), filedest); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	return handle, nil
}

func (u *LocalFileStorage) Read(ctx context.Context, handle string) ([]byte, error) {
	path, err := u.resolve(handle)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.NotFound("file %s", handle)
		}
		return nil, err
	}

	return content, nil
}

func (u *LocalFileStorage) Delete(ctx context.Context, handle string) error {
	path, err := u.resolve(handle)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (u *LocalFileStorage) PublicURL(handle string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, strings.TrimPrefix(handle, "/"))
}

func (u *LocalFileStorage) resolve(handle string) (string, error) {
	key, err := pathutil.CleanKey(handle)
	if err != nil {
		return "", err
	}

	return filepath.Join(u.assetsDir, filepath.FromSlash(key)), nil
}
