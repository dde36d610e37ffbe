package fileuploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/gammazero/workerpool"
	"github.com/productstudio/studio/internal/services/filestorage"
)

type Result struct {
	Index  int
	Handle string
	Err    error
}

// Uploader pushes files to storage through a bounded worker pool.
type Uploader struct {
	wp          *workerpool.WorkerPool
	filestorage filestorage.FileStorage
}

func NewFileUploader(filestorage filestorage.FileStorage, maxWorkers int) *Uploader {
	wp := workerpool.New(maxWorkers)

	return &Uploader{
		wp:          wp,
		filestorage: filestorage,
	}
}

func (w *Uploader) Stop() {
	w.wp.StopWait()
}

func (w *Uploader) Storage() filestorage.FileStorage {
	return w.filestorage
}

func (w *Uploader) Upload(ctx context.Context, index int, file filestorage.FileInfo, response chan<- Result) {
	w.wp.Submit(func() {
		handle, err := w.filestorage.Save(ctx, file)
		response <- Result{Index: index, Handle: handle, Err: err}
	})
}

// UploadAll stores every file concurrently and returns the handles in input
// order. If any upload fails the files that did make it are deleted again.
func (w *Uploader) UploadAll(ctx context.Context, files []filestorage.FileInfo) ([]string, error) {
	response := make(chan Result, len(files))
	for i, file := range files {
		w.Upload(ctx, i, file, response)
	}

	handles := make([]string, len(files))
	var errs []error
	for range files {
		res := <-response
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("upload %d: %w", res.Index+1, res.Err))
			continue
		}
		handles[res.Index] = res.Handle
	}

	if len(errs) > 0 {
		var uploaded []string
		for _, handle := range handles {
			if handle != "" {
				uploaded = append(uploaded, handle)
			}
		}
		if err := w.Release(context.WithoutCancel(ctx), uploaded...); err != nil {
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}

	return handles, nil
}

// Release deletes the given handles, collecting every failure.
func (w *Uploader) Release(ctx context.Context, handles ...string) error {
	var errs []error
	for _, handle := range handles {
		if err := w.filestorage.Delete(ctx, handle); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", handle, err))
		}
	}

	return errors.Join(errs...)
}
