package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/productstudio/studio/internal/templates"
	"github.com/productstudio/studio/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pg"
)

type Config struct {
	Port           int               `mapstructure:"port"`
	Host           string            `mapstructure:"host"`
	Environment    string            `mapstructure:"environment"`
	HomeDir        string            `mapstructure:"home_dir"`
	AssetsDir      string            `mapstructure:"assets_dir"`
	TempDir        string            `mapstructure:"temp_dir"`
	PublicDir      string            `mapstructure:"public_dir"`
	DisableAuth    bool              `mapstructure:"disable_auth"`
	FilesystemType string            `mapstructure:"filesystem_type"`
	DB             *DBConfig         `mapstructure:"db"`
	S3             *S3Config         `mapstructure:"s3"`
	Pulsar         *PulsarConfig     `mapstructure:"pulsar"`
	OpenAI         *OpenAIConfig     `mapstructure:"openai"`
	Generation     *GenerationConfig `mapstructure:"generation"`
	References     *ReferenceConfig  `mapstructure:"references"`
}

type DBConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	Debug       bool   `mapstructure:"debug"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type S3Config struct {
	Folder      string `mapstructure:"folder"`
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	PublicUrl   string `mapstructure:"public_url"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

type OpenAIConfig struct {
	APIKey        string `mapstructure:"api_key"`
	AnalysisModel string `mapstructure:"analysis_model"`
	ImageModel    string `mapstructure:"image_model"`
}

type GenerationConfig struct {
	Workers          int           `mapstructure:"workers"`
	Timeout          time.Duration `mapstructure:"timeout"`
	QueueSize        int           `mapstructure:"queue_size"`
	MaxReferenceEdge int           `mapstructure:"max_reference_edge"`
}

type ReferenceConfig struct {
	Limit          int   `mapstructure:"limit"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

var config *Config

func InitConfig() error {
	homeDir, err := getHomeDir()
	if err != nil {
		return err
	}

	assetsDir, err := getSubDir(homeDir, "assets_dir", "assets")
	if err != nil {
		return err
	}

	tempDir, err := getSubDir(homeDir, "temp_dir", "temp")
	if err != nil {
		return err
	}

	if err := createHomeDirs(homeDir, assetsDir, tempDir); err != nil {
		return err
	}

	viper.Set("home_dir", homeDir)
	viper.Set("assets_dir", assetsDir)
	viper.Set("temp_dir", tempDir)

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(homeDir, ".env")
	}

	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(homeDir, "config.yaml")
	}

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	viper.SetConfigFile(configFile)
	if err := LoadConfig(false); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	SetDefaults(viper.GetViper())
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	config = cfg.withDefaults()
	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func IsLoaded() bool {
	return config != nil
}

// withDefaults fills in the sections that may be absent from a hand written
// config.yaml so that callers never see a nil section.
func (c *Config) withDefaults() *Config {
	if c.DB == nil {
		c.DB = &DBConfig{}
	}
	if c.DB.Driver == "" {
		c.DB.Driver = DriverSQLite
	}
	if c.DB.DSN == "" && c.DB.Driver == DriverSQLite {
		c.DB.DSN = "file:" + filepath.Join(c.HomeDir, "studio.db")
	}

	if c.Generation == nil {
		c.Generation = &GenerationConfig{}
	}
	if c.Generation.Workers <= 0 {
		c.Generation.Workers = DefaultGenerationWorkers
	}
	if c.Generation.Timeout <= 0 {
		c.Generation.Timeout = DefaultGenerationTimeout
	}
	if c.Generation.QueueSize <= 0 {
		c.Generation.QueueSize = DefaultGenerationQueueSize
	}
	if c.Generation.MaxReferenceEdge <= 0 {
		c.Generation.MaxReferenceEdge = DefaultMaxReferenceEdge
	}

	if c.References == nil {
		c.References = &ReferenceConfig{}
	}
	if c.References.Limit <= 0 {
		c.References.Limit = DefaultReferenceLimit
	}
	if c.References.MaxUploadBytes <= 0 {
		c.References.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if c.OpenAI == nil {
		c.OpenAI = &OpenAIConfig{}
	}
	if c.OpenAI.AnalysisModel == "" {
		c.OpenAI.AnalysisModel = DefaultAnalysisModel
	}
	if c.OpenAI.ImageModel == "" {
		c.OpenAI.ImageModel = DefaultImageModel
	}

	if c.FilesystemType == "" {
		c.FilesystemType = FilesystemLocal
	}

	return c
}

// Returns the studio home directory path.
// It attempts to retrieve the home directory from the following sources in order:
// 1. The `home_dir` flag from viper.
// 2. The `STUDIO_HOME` environment variable.
// 3. The default home directory.
func getHomeDir() (string, error) {
	homeDir := viper.GetString("home_dir")
	if homeDir == "" {
		homeDir = os.Getenv("STUDIO_HOME")
		if homeDir == "" {
			homeDir = DefaultHomeDir
		}
	}

	homeDir, err := pathutil.ExpandPath(homeDir)
	if err != nil {
		return "", fmt.Errorf("failed to expand home path: %w", err)
	}

	return homeDir, nil
}

func getSubDir(homeDir, key, name string) (string, error) {
	if homeDir == "" {
		return "", ErrHomeNotSet
	}

	dir := viper.GetString(key)
	if dir == "" {
		dir = filepath.Join(homeDir, name)
	}

	dir, err := pathutil.ExpandPath(dir)
	if err != nil {
		return "", ErrHomeExpandFailed
	}

	return dir, nil
}

func createHomeDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return nil
}

// NormalizeFilesystem returns the lower-cased filesystem type.
func (c *Config) NormalizeFilesystem() string {
	return strings.ToLower(strings.TrimSpace(c.FilesystemType))
}
