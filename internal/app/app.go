package app

import (
	"context"
	"errors"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db"
	"github.com/productstudio/studio/internal/db/drivers"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/mq"
	"github.com/productstudio/studio/internal/services/analysis"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/services/fileuploader"
	"github.com/productstudio/studio/internal/services/generation"
	"github.com/productstudio/studio/internal/services/products"
	"github.com/productstudio/studio/internal/services/references"
	"github.com/productstudio/studio/internal/services/specification"
	"github.com/productstudio/studio/pkg/logger"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const uploadWorkers = 10

type App struct {
	mq           mq.MQ
	db           *bun.DB
	driver       drivers.Driver
	config       *config.Config
	ctx          context.Context
	cancelFunc   context.CancelFunc
	storage      filestorage.FileStorage
	fileuploader *fileuploader.Uploader
	analyzer     analysis.Analyzer

	Logger *zap.Logger

	APIKeyRepository repository.IAPIKeyRepository

	Products       *products.Service
	Specifications *specification.Service
	References     *references.Service
	Ledger         *generation.Ledger
	Orchestrator   *generation.Orchestrator
	// nil when no analyzer is configured
	Analysis *analysis.Service
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithDB(driver drivers.Driver) OptionFunc {
	return func(app *App) error {
		app.driver = driver
		app.db = driver.GetDB()
		return nil
	}
}

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithMQ() OptionFunc {
	return func(app *App) error {
		queue, err := mq.NewMQ(app.config, app.Logger)
		if err != nil {
			return err
		}
		app.mq = queue
		return nil
	}
}

// WithDBInitialization opens the configured database and applies pending
// migrations when db.auto_migrate is set.
func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		driver, err := db.NewConnection(app.ctx, app.config)
		if err != nil {
			return err
		}

		app.driver = driver
		app.db = driver.GetDB()
		return nil
	}
}

func WithFileUploader() OptionFunc {
	return func(app *App) error {
		storage, err := filestorage.NewFileStorage(app.config)
		if err != nil {
			return err
		}

		app.storage = storage
		app.fileuploader = fileuploader.NewFileUploader(storage, uploadWorkers)
		return nil
	}
}

func WithAnalyzer(analyzer analysis.Analyzer) OptionFunc {
	return func(app *App) error {
		app.analyzer = analyzer
		return nil
	}
}

// WithServices wires the domain services. It must follow the database, queue
// and uploader options.
func WithServices() OptionFunc {
	return func(app *App) error {
		if app.db == nil || app.mq == nil || app.storage == nil {
			return errors.New("services need a database, a queue and file storage")
		}

		app.APIKeyRepository = repository.NewAPIKeyRepository(app.db)
		app.Products = products.NewService(app.db, app.storage, app.Logger)
		app.Specifications = specification.NewService(app.db, app.Logger)
		app.References = references.NewService(app.db, app.storage, app.config.References, app.Logger)
		app.Ledger = generation.NewLedger(app.db, app.storage, app.Logger)
		app.Orchestrator = generation.NewOrchestrator(app.db, app.Ledger, app.mq, config.DefaultGenerateTopic, app.Logger)

		if app.analyzer != nil {
			app.Analysis = analysis.NewService(app.db, app.References, app.Specifications, app.storage, app.analyzer, app.Logger)
		}

		return nil
	}
}

func NewApp(config *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     config,
		Logger:     logger,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

// NewExecutor builds the background executor that drains the generation
// topic with the given capability.
func (app *App) NewExecutor(capability generation.Capability) *generation.Executor {
	return generation.NewExecutor(app.db, app.Ledger, app.fileuploader, capability, app.mq, app.config.Generation, app.Logger)
}

func (app *App) Close() {
	app.cancelFunc()

	if app.mq != nil {
		app.mq.Close()
	}
	if app.fileuploader != nil {
		app.fileuploader.Stop()
	}
	if app.driver != nil {
		app.driver.Close()
	}

	app.Logger.Sync() //nolint:errcheck
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) MQ() mq.MQ {
	return app.mq
}

func (app *App) DB() *bun.DB {
	return app.db
}

func (app *App) Storage() filestorage.FileStorage {
	return app.storage
}

func (app *App) Uploader() *fileuploader.Uploader {
	return app.fileuploader
}
