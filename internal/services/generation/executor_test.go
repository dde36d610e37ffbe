package generation

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestExecuteCompletesAndTruncates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref := f.addReference(t, 9)
	job := f.submit(t, 2)
	capability := &fakeCapability{n: 3, t: t}

	if err := f.executor(t, capability, nil).Execute(ctx, job.ID.String()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	done := f.job(t, job.ID.String())
	if done.Status != models.JobStatusCompleted || done.ArtifactCount != 2 || done.ErrorDetail != "" {
		t.Fatalf("job = %s count %d detail %q", done.Status, done.ArtifactCount, done.ErrorDetail)
	}
	if len(done.Artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(done.Artifacts))
	}
	for i, artifact := range done.Artifacts {
		if artifact.Ordinal != i+1 || artifact.MimeType != "image/png" || artifact.Width != 4 || artifact.ModelText != "revised" {
			t.Fatalf("artifact %d = %+v", i, artifact)
		}
		if !strings.HasPrefix(artifact.StorageHandle, "amber/generated/") {
			t.Fatalf("handle = %q", artifact.StorageHandle)
		}
		if _, err := f.storage.Read(ctx, artifact.StorageHandle); err != nil {
			t.Fatalf("artifact file: %v", err)
		}
	}

	req := capability.last.Load()
	if req.Specification != testSpec || req.Count != 2 || req.Prompt != "studio shot" {
		t.Fatalf("request = %+v", req)
	}
	if len(req.References) != 1 || req.References[0].Handle != ref.StorageHandle || req.References[0].MimeType != "image/png" {
		t.Fatalf("references = %+v", req.References)
	}
}

func TestExecutePartialSuccess(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, 3)

	if err := f.executor(t, &fakeCapability{n: 1, t: t}, nil).Execute(context.Background(), job.ID.String()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	done := f.job(t, job.ID.String())
	if done.Status != models.JobStatusCompleted || done.ArtifactCount != 1 || done.RequestedCount != 3 {
		t.Fatalf("job = %s %d/%d", done.Status, done.ArtifactCount, done.RequestedCount)
	}
}

func TestExecuteFailures(t *testing.T) {
	cases := map[string]struct {
		capability Capability
		detail     string
	}{
		"error": {
			capability: CapabilityFunc(func(ctx context.Context, req Request) ([]Output, error) {
				return nil, errors.New("quota exceeded")
			}),
			detail: "quota exceeded",
		},
		"no outputs": {
			capability: CapabilityFunc(func(ctx context.Context, req Request) ([]Output, error) {
				return nil, nil
			}),
			detail: "no images",
		},
		"panic": {
			capability: CapabilityFunc(func(ctx context.Context, req Request) ([]Output, error) {
				panic("model exploded")
			}),
			detail: "panic: model exploded",
		},
		"empty output": {
			capability: CapabilityFunc(func(ctx context.Context, req Request) ([]Output, error) {
				return []Output{{}}, nil
			}),
			detail: "empty",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			job := f.submit(t, 1)

			if err := f.executor(t, tc.capability, nil).Execute(context.Background(), job.ID.String()); err != nil {
				t.Fatalf("Execute: %v", err)
			}

			done := f.job(t, job.ID.String())
			if done.Status != models.JobStatusFailed || done.ArtifactCount != 0 || len(done.Artifacts) != 0 {
				t.Fatalf("job = %s count %d", done.Status, done.ArtifactCount)
			}
			if !strings.Contains(done.ErrorDetail, tc.detail) {
				t.Fatalf("detail = %q, want it to contain %q", done.ErrorDetail, tc.detail)
			}
		})
	}
}

func TestExecuteTimeout(t *testing.T) {
	f := newFixture(t)
	f.cfg.Generation.Timeout = 50 * time.Millisecond

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cases := map[string]Capability{
		"honours ctx": CapabilityFunc(func(ctx context.Context, req Request) ([]Output, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		"ignores ctx": CapabilityFunc(func(ctx context.Context, req Request) ([]Output, error) {
			<-release
			return nil, nil
		}),
	}

	for name, capability := range cases {
		job := f.submit(t, 1)

		start := time.Now()
		if err := f.executor(t, capability, nil).Execute(context.Background(), job.ID.String()); err != nil {
			t.Fatalf("%s: Execute: %v", name, err)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Fatalf("%s: Execute took %s", name, elapsed)
		}

		done := f.job(t, job.ID.String())
		if done.Status != models.JobStatusFailed || !strings.Contains(done.ErrorDetail, "timed out") {
			t.Fatalf("%s: job = %s %q", name, done.Status, done.ErrorDetail)
		}
	}
}

func TestExecuteUploadFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.submit(t, 2)

	storage := &failingStorage{FileStorage: f.storage, fail: "_2"}
	if err := f.executor(t, &fakeCapability{n: 2, t: t}, storage).Execute(ctx, job.ID.String()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	done := f.job(t, job.ID.String())
	if done.Status != models.JobStatusFailed || !strings.Contains(done.ErrorDetail, "disk full") {
		t.Fatalf("job = %s %q", done.Status, done.ErrorDetail)
	}

	// the first image made it to storage before the second failed and must be gone
	gallery, _ := f.ledger.Gallery(ctx, f.pid(), 0, 0)
	if len(gallery) != 0 {
		t.Fatalf("gallery has %d artifacts", len(gallery))
	}
	err := filepath.WalkDir(f.cfg.AssetsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.Contains(d.Name(), job.ID.String()) {
			t.Errorf("uploaded file not released: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk assets: %v", err)
	}
}

func TestExecuteDuplicateDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.submit(t, 1)

	capability := &fakeCapability{n: 1, t: t}
	executor := f.executor(t, capability, nil)
	core, logs := observer.New(zap.WarnLevel)
	executor.logger = zap.New(core)

	for i := 0; i < 2; i++ {
		if err := executor.Execute(ctx, job.ID.String()); err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
	}

	if calls := capability.calls.Load(); calls != 1 {
		t.Fatalf("capability called %d times, want 1", calls)
	}
	if done := f.job(t, job.ID.String()); done.Status != models.JobStatusCompleted || done.ArtifactCount != 1 {
		t.Fatalf("job = %s %d", done.Status, done.ArtifactCount)
	}

	// an unknown id is skipped too
	if err := executor.Execute(ctx, "0b9f3f7e-5f55-4a8e-9d8e-3c2d8f5e1a10"); err != nil {
		t.Fatalf("Execute unknown: %v", err)
	}

	if skipped := logs.FilterMessage("skipping generation job").Len(); skipped != 2 {
		t.Fatalf("logged %d skips, want 2", skipped)
	}
}

func TestRunConsumesDispatches(t *testing.T) {
	f := newFixture(t)
	executor := f.executor(t, &fakeCapability{n: 1, t: t}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- executor.Run(ctx) }()

	job := f.submit(t, 1)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if done := f.job(t, job.ID.String()); done.Status.IsTerminal() {
			if done.Status != models.JobStatusCompleted {
				t.Fatalf("job = %s %q", done.Status, done.ErrorDetail)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestExecuteKeepsSnapshotAfterReferenceRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref := f.addReference(t, 5)
	job := f.submit(t, 1)

	if err := f.refs.Remove(ctx, ref.ID.String()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := f.storage.Read(ctx, ref.StorageHandle); err != nil {
		t.Fatalf("snapshotted file released early: %v", err)
	}

	capability := &fakeCapability{n: 1, t: t}
	if err := f.executor(t, capability, nil).Execute(ctx, job.ID.String()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	done := f.job(t, job.ID.String())
	if done.Status != models.JobStatusCompleted {
		t.Fatalf("job = %s %q", done.Status, done.ErrorDetail)
	}
	req := capability.last.Load()
	if req == nil || len(req.References) != 1 || req.References[0].Handle != ref.StorageHandle {
		t.Fatalf("capability did not get the snapshot: %+v", req)
	}

	// settled and no longer referenced
	if _, err := f.storage.Read(ctx, ref.StorageHandle); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("reference file survived the job: %v", err)
	}
}
