package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "STUDIO"

const DefaultHomeDir = "~/.product-studio"

const (
	// Matches the window the original async generation path waited on a job.
	DefaultGenerationTimeout   = 5 * time.Minute
	DefaultGenerationWorkers   = 4
	DefaultGenerationQueueSize = 256
	DefaultMaxReferenceEdge    = 1024

	DefaultReferenceLimit = 4
	DefaultMaxUploadBytes = 10 * 1024 * 1024

	DefaultAnalysisModel = "gpt-4o"
	DefaultImageModel    = "dall-e-2"
)

var (
	DefaultGenerateTopic = "studio-generation-requests"
)

var (
	ErrHomeNotSet       = errors.New("studio home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand studio home directory")
)

func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8881)
	v.SetDefault("host", "localhost")
	v.SetDefault("environment", "dev")
	v.SetDefault("filesystem_type", FilesystemLocal)
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("generation.workers", DefaultGenerationWorkers)
	v.SetDefault("generation.timeout", DefaultGenerationTimeout)
	v.SetDefault("generation.queue_size", DefaultGenerationQueueSize)
	v.SetDefault("generation.max_reference_edge", DefaultMaxReferenceEdge)
	v.SetDefault("references.limit", DefaultReferenceLimit)
	v.SetDefault("references.max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("openai.analysis_model", DefaultAnalysisModel)
	v.SetDefault("openai.image_model", DefaultImageModel)
}

// NewTestConfig returns a fully defaulted config rooted at dir.
func NewTestConfig(dir string) *Config {
	cfg := &Config{
		Port:           8881,
		Host:           "localhost",
		Environment:    "test",
		HomeDir:        dir,
		AssetsDir:      dir + "/assets",
		TempDir:        dir + "/temp",
		FilesystemType: FilesystemLocal,
		DisableAuth:    true,
	}

	return cfg.withDefaults()
}
