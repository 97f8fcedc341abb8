package minio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/s3lite/pkg/s3lite"
)

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host:port, no scheme
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool

	CreateBucketIfNotExist bool
}

// Backend implements s3lite.BlobStore on a MinIO (or any S3-compatible) server
type Backend struct {
	client *minio.Client
	config Config
}

// New creates a MinIO client. No network calls are made; use Ping to wait
// for the server and ensure the bucket exists.
func New(config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Backend{client: client, config: config}, nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

// Ping checks the bucket exists, creating it when configured to
func (b *Backend) Ping(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.config.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if !b.config.CreateBucketIfNotExist {
		return fmt.Errorf("bucket %q does not exist", b.config.Bucket)
	}
	err = b.client.MakeBucket(ctx, b.config.Bucket, minio.MakeBucketOptions{Region: b.config.Region})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("create bucket %q: %w", b.config.Bucket, err)
	}
	return nil
}

// Put streams reader to MinIO. size should be exact; -1 makes the client buffer.
func (b *Backend) Put(ctx context.Context, locator string, reader io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.config.Bucket, locator, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", locator, err)
	}
	return nil
}

// Get opens the object. minio-go defers errors to the first read, so the
// object is stat'ed up front to report a missing key immediately.
func (b *Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.config.Bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", locator, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, s3lite.ErrBlobNotFound
		}
		return nil, fmt.Errorf("get object %q: %w", locator, err)
	}
	return obj, nil
}

// Stat returns object information
func (b *Backend) Stat(ctx context.Context, locator string) (*s3lite.BlobInfo, error) {
	info, err := b.client.StatObject(ctx, b.config.Bucket, locator, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, s3lite.ErrBlobNotFound
		}
		return nil, fmt.Errorf("stat object %q: %w", locator, err)
	}
	return &s3lite.BlobInfo{
		Locator:     locator,
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified,
	}, nil
}

// Delete removes the object. MinIO reports success for missing keys.
func (b *Backend) Delete(ctx context.Context, locator string) error {
	err := b.client.RemoveObject(ctx, b.config.Bucket, locator, minio.RemoveObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return s3lite.ErrBlobNotFound
		}
		return fmt.Errorf("remove object %q: %w", locator, err)
	}
	return nil
}

// List walks every object under prefix
func (b *Backend) List(ctx context.Context, prefix string, fn func(s3lite.BlobInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range b.client.ListObjects(ctx, b.config.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects: %w", obj.Err)
		}
		err := fn(s3lite.BlobInfo{
			Locator:     obj.Key,
			Size:        obj.Size,
			ContentType: obj.ContentType,
			UpdatedAt:   obj.LastModified,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
