package generation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/mq"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/services/fileuploader"
	"github.com/productstudio/studio/internal/types"
	"github.com/productstudio/studio/internal/utils/imageutil"
	"github.com/productstudio/studio/internal/utils/pathutil"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack"
	"go.uber.org/zap"
)

// Executor runs dispatched jobs in the background. Every job it claims ends
// in completed or failed, whatever the capability does.
type Executor struct {
	ledger     *Ledger
	products   repository.IProductRepository
	specs      repository.ISpecificationRepository
	uploader   *fileuploader.Uploader
	capability Capability
	queue      mq.MQ
	topic      string
	timeout    time.Duration
	workers    int
	logger     *zap.Logger
}

func NewExecutor(db *bun.DB, ledger *Ledger, uploader *fileuploader.Uploader, capability Capability, queue mq.MQ, cfg *config.GenerationConfig, logger *zap.Logger) *Executor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultGenerationTimeout
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultGenerationWorkers
	}

	return &Executor{
		ledger:     ledger,
		products:   repository.NewProductRepository(db),
		specs:      repository.NewSpecificationRepository(db),
		uploader:   uploader,
		capability: capability,
		queue:      queue,
		topic:      config.DefaultGenerateTopic,
		timeout:    timeout,
		workers:    workers,
		logger:     logger.Named("executor"),
	}
}

// Run consumes the generation topic until ctx is cancelled or the queue is
// closed, then waits for the jobs already handed to the pool.
func (e *Executor) Run(ctx context.Context) error {
	wp := workerpool.New(e.workers)
	defer wp.StopWait()

	e.logger.Info("executor started", zap.Int("workers", e.workers), zap.Duration("timeout", e.timeout))
	for {
		message, err := e.queue.Receive(ctx, e.topic)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, mq.ErrQueueClosed) || errors.Is(err, mq.ErrTopicClosed) {
				e.logger.Info("executor stopped")
				return nil
			}
			return fmt.Errorf("failed to receive generation message: %w", err)
		}

		data, err := e.queue.GetMessageData(message)
		if err != nil {
			e.logger.Error("failed to read generation message", zap.Error(err))
			continue
		}
		if err := e.queue.Ack(e.topic, message); err != nil {
			e.logger.Warn("failed to ack generation message", zap.Error(err))
		}

		var dispatch types.DispatchMessage
		if err := msgpack.Unmarshal(data, &dispatch); err != nil {
			e.logger.Error("failed to decode generation message", zap.Error(err))
			continue
		}

		jobID := dispatch.JobID
		wp.Submit(func() {
			if err := e.Execute(ctx, jobID); err != nil {
				e.logger.Error("generation job failed to settle", zap.String("job_id", jobID), zap.Error(err))
			}
		})
	}
}

// Execute claims the job and drives it to a terminal state. A job that is not
// pending, such as a duplicate dispatch, is skipped.
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	log := e.logger.With(zap.String("job_id", jobID))

	job, err := e.ledger.TransitionToProcessing(ctx, jobID)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransition) || errors.Is(err, types.ErrNotFound) {
			log.Warn("skipping generation job", zap.Error(err))
			return nil
		}
		return err
	}

	started := time.Now()
	artifacts, runErr := e.produce(ctx, job)

	// the outcome is persisted even when ctx has been cancelled
	persistCtx := context.WithoutCancel(ctx)

	if runErr == nil {
		err := e.ledger.TransitionToTerminal(persistCtx, jobID, models.JobStatusCompleted, "", artifacts)
		if err == nil {
			log.Info("generation job completed",
				zap.Int("artifacts", len(artifacts)),
				zap.Int("requested", job.RequestedCount),
				zap.Duration("elapsed", time.Since(started)),
			)
			return nil
		}

		handles := make([]string, len(artifacts))
		for i, artifact := range artifacts {
			handles[i] = artifact.StorageHandle
		}
		if rerr := e.uploader.Release(persistCtx, handles...); rerr != nil {
			log.Error("failed to release artifacts", zap.Error(rerr))
		}
		runErr = fmt.Errorf("failed to record artifacts: %w", err)
	}

	log.Warn("generation job failed", zap.Error(runErr), zap.Duration("elapsed", time.Since(started)))
	return e.ledger.TransitionToTerminal(persistCtx, jobID, models.JobStatusFailed, runErr.Error(), nil)
}

// produce runs the capability and uploads its outputs. It never panics.
func (e *Executor) produce(ctx context.Context, job *models.GenerationJob) (artifacts []*models.GeneratedArtifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while producing artifacts", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			artifacts, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	product, err := e.products.GetByID(ctx, job.ProductID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	req, err := e.request(ctx, job)
	if err != nil {
		return nil, err
	}

	outputs, err := e.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.New("generation returned no images")
	}
	if len(outputs) > job.RequestedCount {
		outputs = outputs[:job.RequestedCount]
	}

	now := time.Now().UTC()
	files := make([]filestorage.FileInfo, len(outputs))
	artifacts = make([]*models.GeneratedArtifact, len(outputs))
	for i, output := range outputs {
		if len(output.Content) == 0 {
			return nil, fmt.Errorf("generated image %d is empty", i+1)
		}

		mtype := mimetype.Detect(output.Content)
		width, height, _, _ := imageutil.DecodeConfig(output.Content)

		key := pathutil.ArtifactKey(product.Slug, now, job.ID.String(), i+1, "")
		files[i] = filestorage.NewFileInfo(key, mtype.Extension(), output.Content)
		artifacts[i] = &models.GeneratedArtifact{
			ID:        uuid.Must(uuid.NewRandom()),
			JobID:     job.ID,
			ProductID: job.ProductID,
			Ordinal:   i + 1,
			MimeType:  mtype.String(),
			SizeBytes: int64(len(output.Content)),
			Width:     width,
			Height:    height,
			ModelText: output.ModelText,
			CreatedAt: now,
		}
	}

	handles, err := e.uploader.UploadAll(ctx, files)
	if err != nil {
		return nil, types.ExternalFailure("upload generated images", err)
	}
	for i, handle := range handles {
		artifacts[i].StorageHandle = handle
	}

	return artifacts, nil
}

// request loads the pinned specification and reference bytes of a job.
func (e *Executor) request(ctx context.Context, job *models.GenerationJob) (Request, error) {
	prompt := job.Prompt
	if job.CustomPromptOverride != "" {
		prompt = job.CustomPromptOverride
	}

	req := Request{
		JobID:       job.ID.String(),
		Prompt:      prompt,
		AspectRatio: job.AspectRatio,
		Resolution:  job.Resolution,
		Count:       job.RequestedCount,
	}

	if job.SpecificationID != nil {
		spec, err := e.specs.GetByID(ctx, job.SpecificationID.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return req, fmt.Errorf("pinned specification %s no longer exists", job.SpecificationID)
			}
			return req, fmt.Errorf("failed to load specification: %w", err)
		}
		req.Specification = spec.Content
	}

	storage := e.uploader.Storage()
	for _, handle := range job.ReferenceHandles {
		content, err := storage.Read(ctx, handle)
		if err != nil {
			return req, types.ExternalFailure("read reference image "+handle, err)
		}

		req.References = append(req.References, Reference{
			Handle:   handle,
			MimeType: mimetype.Detect(content).String(),
			Content:  content,
		})
	}

	return req, nil
}

type generateResult struct {
	outputs []Output
	err     error
}

// generate calls the capability under the configured timeout. A capability
// that ignores its context is abandoned when the deadline passes.
func (e *Executor) generate(ctx context.Context, req Request) ([]Output, error) {
	genCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan generateResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("generation capability panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				done <- generateResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()

		outputs, err := e.capability.Generate(genCtx, req)
		done <- generateResult{outputs: outputs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("generation timed out after %s", e.timeout)
			}
			return nil, types.ExternalFailure("generate images", res.err)
		}
		return res.outputs, nil
	case <-genCtx.Done():
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("generation timed out after %s", e.timeout)
		}
		return nil, genCtx.Err()
	}
}
