package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/productstudio/studio/internal/app"
	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/server"
	"github.com/productstudio/studio/internal/services/analysis"
	"github.com/productstudio/studio/internal/services/generation"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the studio server and generation executor",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", 8881, "Port to run the server on")
	flags.String("host", "localhost", "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration")
	flags.Bool("disable-auth", false, "Disable authentication when receiving requests")
	flags.String("filesystem-type", "local", "Filesystem type: 'local' or 's3'")
	flags.String("public-dir", "", "Path where static files should be served from")

	flags.String("db-dsn", "file:./data/main.db", "Database DSN (Connection URL or Path)")
	flags.String("pulsar-url", "", "URL of the pulsar broker. Example: pulsar+ssl://my-cluster.streamnative.cloud:6651")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-folder", "", "S3 folder")
	flags.String("s3-public-url", "", "Public URL for S3 files")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	bindFlags()
	bindEnvs()
}

func bindFlags() {
	flags := Cmd.Flags()

	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
	viper.BindPFlag("environment", flags.Lookup("environment"))
	viper.BindPFlag("disable_auth", flags.Lookup("disable-auth"))
	viper.BindPFlag("filesystem_type", flags.Lookup("filesystem-type"))
	viper.BindPFlag("public_dir", flags.Lookup("public-dir"))

	viper.BindPFlag("db.dsn", flags.Lookup("db-dsn"))
	viper.BindPFlag("pulsar.url", flags.Lookup("pulsar-url"))

	viper.BindPFlag("s3.access_key", flags.Lookup("s3-access-key"))
	viper.BindPFlag("s3.secret_key", flags.Lookup("s3-secret-key"))
	viper.BindPFlag("s3.region_name", flags.Lookup("s3-region-name"))
	viper.BindPFlag("s3.bucket_name", flags.Lookup("s3-bucket-name"))
	viper.BindPFlag("s3.folder", flags.Lookup("s3-folder"))
	viper.BindPFlag("s3.public_url", flags.Lookup("s3-public-url"))
	viper.BindPFlag("s3.endpoint_url", flags.Lookup("s3-endpoint-url"))
}

func bindEnvs() {
	// Example: STUDIO_PORT
	viper.BindEnv("port")
	viper.BindEnv("host")
	viper.BindEnv("environment")
	viper.BindEnv("disable_auth")
	viper.BindEnv("filesystem_type")
	viper.BindEnv("public_dir")

	viper.BindEnv("db.driver")
	viper.BindEnv("db.dsn")
	viper.BindEnv("db.debug")
	viper.BindEnv("pulsar.url")

	viper.BindEnv("s3.access_key")
	viper.BindEnv("s3.secret_key")
	viper.BindEnv("s3.region_name")
	viper.BindEnv("s3.bucket_name")
	viper.BindEnv("s3.folder")
	viper.BindEnv("s3.public_url")
	viper.BindEnv("s3.endpoint_url")

	viper.BindEnv("generation.workers")
	viper.BindEnv("generation.timeout")

	// External API services (does NOT use STUDIO_ prefix)
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg := config.GetConfig()

	app, err := createNewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(app.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)

	// the executor has to be receiving before pending jobs are dispatched again
	executor := app.NewExecutor(newCapability(cfg, app.Logger))
	executorDone := make(chan struct{})
	go func() {
		defer close(executorDone)
		if err := executor.Run(ctx); err != nil {
			errc <- err
		}
	}()

	if _, err := app.Orchestrator.Resume(ctx); err != nil {
		app.Logger.Error("failed to resume pending generation jobs", zap.Error(err))
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}
	srv.SetupRoutes(app)

	go func() {
		fmt.Printf("Studio server started on %s\n", srv.Addr())
		if err := srv.Start(); err != nil {
			errc <- err
		}
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
		app.Logger.Error("failed to stop server", zap.Error(stopErr))
	}

	stop()
	<-executorDone

	return err
}

func createNewApp(cfg *config.Config) (*app.App, error) {
	options := []app.OptionFunc{
		app.WithDBInitialization(),
		app.WithMQ(),
		app.WithFileUploader(),
	}

	analyzer, err := analysis.NewOpenAIAnalyzer(cfg)
	switch {
	case err == nil:
		options = append(options, app.WithAnalyzer(analyzer))
	case errors.Is(err, analysis.ErrNoAPIKey):
		fmt.Println("OPENAI_API_KEY is not set, product analysis is disabled")
	default:
		return nil, err
	}

	options = append(options, app.WithServices())
	return app.NewApp(cfg, options...)
}

func newCapability(cfg *config.Config, logger *zap.Logger) generation.Capability {
	capability, err := generation.NewOpenAICapability(cfg, logger)
	if err == nil {
		return capability
	}

	logger.Warn("image generation is unavailable, jobs will fail", zap.Error(err))
	return generation.CapabilityFunc(func(ctx context.Context, req generation.Request) ([]generation.Output, error) {
		return nil, err
	})
}
