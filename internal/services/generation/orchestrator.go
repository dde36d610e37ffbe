package generation

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/mq"
	"github.com/productstudio/studio/internal/services/references"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack"
	"go.uber.org/zap"
)

const dispatchRetryWindow = 5 * time.Second

// Orchestrator accepts generation requests. Submit pins the specification
// and the reference snapshot, records a pending job and dispatches its id
// to the executor without waiting for the result.
type Orchestrator struct {
	db       *bun.DB
	products repository.IProductRepository
	specs    repository.ISpecificationRepository
	images   repository.IReferenceImageRepository
	jobs     repository.IJobRepository
	ledger   *Ledger
	queue    mq.MQ
	topic    string
	logger   *zap.Logger
}

func NewOrchestrator(db *bun.DB, ledger *Ledger, queue mq.MQ, topic string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		db:       db,
		products: repository.NewProductRepository(db),
		specs:    repository.NewSpecificationRepository(db),
		images:   repository.NewReferenceImageRepository(db),
		jobs:     repository.NewJobRepository(db),
		ledger:   ledger,
		queue:    queue,
		topic:    topic,
		logger:   logger.Named("orchestrator"),
	}
}

func (o *Orchestrator) Submit(ctx context.Context, productID string, params types.GenerateParamsRequest) (*models.GenerationJob, error) {
	pid, err := types.ParseID("product", productID)
	if err != nil {
		return nil, err
	}

	params, err = validateParams(params)
	if err != nil {
		return nil, err
	}

	job := &models.GenerationJob{
		ID:                   uuid.Must(uuid.NewRandom()),
		ProductID:            pid,
		Prompt:               params.Prompt,
		CustomPromptOverride: params.CustomPromptOverride,
		AspectRatio:          params.AspectRatio,
		Resolution:           params.Resolution,
		RequestedCount:       params.ImageCount,
		CreatedAt:            time.Now().UTC(),
	}

	err = o.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := o.products.WithTx(&tx).LockActiveByID(ctx, pid.String()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NotFound("product %s", productID)
			}
			return err
		}

		spec, err := o.pinSpecification(ctx, &tx, pid, params.SpecificationID)
		if err != nil {
			return err
		}
		job.SpecificationID = &spec.ID

		images, err := o.images.WithTx(&tx).ListByProduct(ctx, pid.String())
		if err != nil {
			return err
		}
		job.ReferenceHandles = make([]string, 0, len(images))
		for _, img := range references.PrimaryFirst(images) {
			job.ReferenceHandles = append(job.ReferenceHandles, img.StorageHandle)
		}

		return o.ledger.Create(ctx, &tx, job)
	})
	if err != nil {
		return nil, err
	}

	if err := o.Dispatch(ctx, job.ID.String()); err != nil {
		if _, derr := o.jobs.DeleteUnlessStatus(context.WithoutCancel(ctx), job.ID.String(), models.JobStatusProcessing); derr != nil {
			o.logger.Error("failed to remove undispatched job", zap.String("job_id", job.ID.String()), zap.Error(derr))
		}
		return nil, types.ExternalFailure("dispatch generation job", err)
	}

	o.logger.Info("generation job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("product_id", productID),
		zap.String("specification_id", job.SpecificationID.String()),
		zap.Int("references", len(job.ReferenceHandles)),
		zap.Int("count", job.RequestedCount),
	)
	return job, nil
}

// pinSpecification resolves the version a job will use: the requested one,
// which must belong to the product, or the active one.
func (o *Orchestrator) pinSpecification(ctx context.Context, tx *bun.Tx, productID uuid.UUID, specID *string) (*models.SpecificationVersion, error) {
	specs := o.specs.WithTx(tx)

	if specID != nil && *specID != "" {
		id, err := types.ParseID("specification", *specID)
		if err != nil {
			return nil, err
		}

		spec, err := specs.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.NotFound("specification %s", *specID)
			}
			return nil, err
		}
		if spec.ProductID != productID {
			return nil, types.NotFound("specification %s for product %s", *specID, productID)
		}

		return spec, nil
	}

	spec, err := specs.GetActive(ctx, productID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.PreconditionFailed("product %s has no active specification", productID)
		}
		return nil, err
	}

	return spec, nil
}

// Dispatch hands a job id to the executor through the generation topic. A
// full topic is retried for a short while; any other error is returned as is.
func (o *Orchestrator) Dispatch(ctx context.Context, jobID string) error {
	payload, err := msgpack.Marshal(types.DispatchMessage{
		JobID:      jobID,
		EnqueuedAt: time.Now().UTC().UnixMilli(),
	})
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = dispatchRetryWindow

	return backoff.Retry(func() error {
		err := o.queue.Publish(ctx, o.topic, payload)
		if err != nil && !errors.Is(err, mq.ErrQueueFull) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// Resume fails jobs interrupted by a restart and dispatches the pending ones
// again. It returns the number of jobs dispatched.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	pending, err := o.ledger.Recover(ctx)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, id := range pending {
		if err := o.Dispatch(ctx, id); err != nil {
			o.logger.Error("failed to dispatch pending job", zap.String("job_id", id), zap.Error(err))
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		o.logger.Info("pending generation jobs dispatched", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

func validateParams(params types.GenerateParamsRequest) (types.GenerateParamsRequest, error) {
	params.Prompt = strings.TrimSpace(params.Prompt)
	params.CustomPromptOverride = strings.TrimSpace(params.CustomPromptOverride)
	if params.Prompt == "" {
		return params, types.InvalidArgument("prompt is required")
	}

	if params.ImageCount == 0 {
		params.ImageCount = types.MinImageCount
	}
	if params.ImageCount < types.MinImageCount || params.ImageCount > types.MaxImageCount {
		return params, types.InvalidArgument("image_count must be between %d and %d", types.MinImageCount, types.MaxImageCount)
	}

	if params.AspectRatio == "" {
		params.AspectRatio = types.DefaultAspectRatio
	}
	if !slices.Contains(types.AspectRatios, params.AspectRatio) {
		return params, types.InvalidArgument("aspect_ratio must be one of %s", strings.Join(types.AspectRatios, ", "))
	}

	if params.Resolution == "" {
		params.Resolution = types.DefaultResolution
	}
	if !slices.Contains(types.Resolutions, params.Resolution) {
		return params, types.InvalidArgument("resolution must be one of %s", strings.Join(types.Resolutions, ", "))
	}

	return params, nil
}
