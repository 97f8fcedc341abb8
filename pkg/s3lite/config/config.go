// Package config loads s3lite server configuration from the environment,
// an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file
const ConfigFileEnv = "S3LITE_CONFIG_FILE"

// Storage backend names
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMinIO  = "minio"
	BackendGCS    = "gcs"
)

// Config is the complete server configuration
type Config struct {
	Port          string `yaml:"port" env:"PORT" env-default:"8080"`
	Environment   string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	APIKey        string `yaml:"api_key" env:"S3LITE_API_KEY"`
	PresignSecret string `yaml:"presign_secret" env:"PRESIGN_SECRET"`
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-default:"http://127.0.0.1:8000"`

	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Upload   UploadConfig   `yaml:"upload"`
	Sweep    SweepConfig    `yaml:"sweep"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

type DatabaseConfig struct {
	// URL is a postgres connection string. Empty or "memory" selects the in-memory repository.
	URL           string        `yaml:"url" env:"DATABASE_URL"`
	MaxAttempts   int           `yaml:"max_attempts" env:"DB_MAX_ATTEMPTS" env-default:"30"`
	RetryInterval time.Duration `yaml:"retry_interval" env:"DB_RETRY_INTERVAL" env-default:"1s"`
}

type StorageConfig struct {
	Backend   string    `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
	FSBaseDir string    `yaml:"fs_base_dir" env:"FS_BASE_DIR" env-default:"./data/blobs"`
	S3        S3Config  `yaml:"s3"`
	GCS       GCSConfig `yaml:"gcs"`
}

// S3Config is shared by the s3 and minio backends
type S3Config struct {
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"s3lite"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE" env-default:"false"`
	UseSSL          bool   `yaml:"use_ssl" env:"S3_USE_SSL" env-default:"true"`
	CreateBucket    bool   `yaml:"create_bucket" env:"S3_CREATE_BUCKET" env-default:"true"`
	EnableSSE       bool   `yaml:"enable_sse" env:"S3_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm    string `yaml:"sse_algorithm" env:"S3_SSE_ALGORITHM" env-default:"AES256"`
	SSEKMSKeyID     string `yaml:"sse_kms_key_id" env:"S3_SSE_KMS_KEY_ID"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket" env:"GCS_BUCKET"`
	CredentialsFile string `yaml:"credentials_file" env:"GCS_CREDENTIALS_FILE"`
	Endpoint        string `yaml:"endpoint" env:"GCS_ENDPOINT"`
}

type UploadConfig struct {
	StagingDir string `yaml:"staging_dir" env:"STAGING_DIR"`
	MaxBytes   int64  `yaml:"max_bytes" env:"MAX_UPLOAD_BYTES" env-default:"0"`
}

type SweepConfig struct {
	// Schedule is a standard 5-field cron expression; empty disables the sweeper.
	Schedule string        `yaml:"schedule" env:"SWEEP_SCHEDULE"`
	Grace    time.Duration `yaml:"grace" env:"SWEEP_GRACE" env-default:"1h"`
}

// Load reads .env files (".env" when none are named), then the YAML file
// named by S3LITE_CONFIG_FILE if set, then the environment, and validates.
// Missing .env files are ignored.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.Environment {
	case "development", "production", "testing":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, production or testing, got %q", c.Environment)
	}

	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.PublicBaseURL)
	}

	if c.Database.MaxAttempts < 1 {
		return errors.New("DB_MAX_ATTEMPTS must be at least 1")
	}
	if c.Database.RetryInterval <= 0 {
		return errors.New("DB_RETRY_INTERVAL must be positive")
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.Upload.MaxBytes < 0 {
		return errors.New("MAX_UPLOAD_BYTES must not be negative")
	}

	if c.Sweep.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("invalid SWEEP_SCHEDULE %q: %w", c.Sweep.Schedule, err)
		}
		if c.Sweep.Grace <= 0 {
			return errors.New("SWEEP_GRACE must be positive")
		}
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendFS:
		if s.FSBaseDir == "" {
			return errors.New("FS_BASE_DIR is required for the fs backend")
		}
	case BackendS3:
		if s.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 backend")
		}
		if (s.S3.AccessKeyID == "") != (s.S3.SecretAccessKey == "") {
			return errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
	case BackendMinIO:
		if s.S3.Endpoint == "" || s.S3.Bucket == "" {
			return errors.New("S3_ENDPOINT and S3_BUCKET are required for the minio backend")
		}
		if s.S3.AccessKeyID == "" || s.S3.SecretAccessKey == "" {
			return errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required for the minio backend")
		}
	case BackendGCS:
		if s.GCS.Bucket == "" {
			return errors.New("GCS_BUCKET is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", s.Backend)
	}
	return nil
}

// UsesPostgres reports whether DATABASE_URL selects the postgres repository
func (c *Config) UsesPostgres() bool {
	return c.Database.URL != "" && c.Database.URL != "memory"
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Warnings lists settings that leave parts of the API failing closed
func (c *Config) Warnings() []string {
	var w []string
	if c.APIKey == "" {
		w = append(w, "S3LITE_API_KEY is not set: requests without a presigned URL will fail with 500")
	}
	if c.PresignSecret == "" {
		w = append(w, "PRESIGN_SECRET is not set: presigning and presigned requests will fail with 500")
	}
	return w
}
