package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/s3lite/pkg/s3lite"
	"github.com/tendant/s3lite/pkg/s3lite/repo/memory"
	repopg "github.com/tendant/s3lite/pkg/s3lite/repo/postgres"
	fsstorage "github.com/tendant/s3lite/pkg/s3lite/storage/fs"
	gcsstorage "github.com/tendant/s3lite/pkg/s3lite/storage/gcs"
	memorystorage "github.com/tendant/s3lite/pkg/s3lite/storage/memory"
	miniostorage "github.com/tendant/s3lite/pkg/s3lite/storage/minio"
	s3storage "github.com/tendant/s3lite/pkg/s3lite/storage/s3"
)

// BuildRepository creates the metadata repository. The returned close
// function releases any connection pool. No connection is attempted here.
func (c *Config) BuildRepository(ctx context.Context) (s3lite.Repository, func(), error) {
	if !c.UsesPostgres() {
		return memory.New(), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(c.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return repopg.NewWithPool(pool), pool.Close, nil
}

// BuildBlobStore creates the configured blob backend
func (c *Config) BuildBlobStore(ctx context.Context) (s3lite.BlobStore, func(), error) {
	noop := func() {}
	s := c.Storage

	switch s.Backend {
	case BackendMemory:
		return memorystorage.New(), noop, nil

	case BackendFS:
		store, err := fsstorage.New(fsstorage.Config{BaseDir: s.FSBaseDir})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case BackendS3:
		store, err := s3storage.New(ctx, s3storage.Config{
			Region:                 s.S3.Region,
			Bucket:                 s.S3.Bucket,
			AccessKeyID:            s.S3.AccessKeyID,
			SecretAccessKey:        s.S3.SecretAccessKey,
			Endpoint:               endpointURL(s.S3.Endpoint, s.S3.UseSSL),
			UsePathStyle:           s.S3.UsePathStyle,
			EnableSSE:              s.S3.EnableSSE,
			SSEAlgorithm:           s.S3.SSEAlgorithm,
			SSEKMSKeyID:            s.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: s.S3.CreateBucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case BackendMinIO:
		store, err := miniostorage.New(miniostorage.Config{
			Endpoint:               hostOnly(s.S3.Endpoint),
			AccessKeyID:            s.S3.AccessKeyID,
			SecretAccessKey:        s.S3.SecretAccessKey,
			Bucket:                 s.S3.Bucket,
			Region:                 s.S3.Region,
			UseSSL:                 s.S3.UseSSL,
			CreateBucketIfNotExist: s.S3.CreateBucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case BackendGCS:
		store, err := gcsstorage.New(ctx, gcsstorage.Config{
			Bucket:          s.GCS.Bucket,
			CredentialsFile: s.GCS.CredentialsFile,
			Endpoint:        s.GCS.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unsupported storage backend type: %s", s.Backend)
}

// BuildUploader creates the streaming uploader from the upload settings
func (c *Config) BuildUploader() *s3lite.Uploader {
	return s3lite.NewUploader(
		s3lite.WithStagingDir(c.Upload.StagingDir),
		s3lite.WithMaxSize(c.Upload.MaxBytes),
	)
}

// endpointURL adds a scheme to a bare host:port endpoint
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// hostOnly strips any scheme and trailing slash, as the minio client expects host:port
func hostOnly(endpoint string) string {
	if _, rest, ok := strings.Cut(endpoint, "://"); ok {
		endpoint = rest
	}
	return strings.TrimRight(endpoint, "/")
}
