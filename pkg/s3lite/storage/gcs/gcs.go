package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/tendant/s3lite/pkg/s3lite"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Config options for the Google Cloud Storage backend
type Config struct {
	Bucket          string
	CredentialsFile string // Optional service account JSON; default credentials otherwise
	Endpoint        string // Optional, for emulators
}

// Backend implements s3lite.BlobStore on a GCS bucket
type Backend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// New creates a GCS client
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Backend{
		client: client,
		bucket: client.Bucket(config.Bucket),
		name:   config.Bucket,
	}, nil
}

// Close releases the underlying client
func (b *Backend) Close() error {
	return b.client.Close()
}

// Ping checks the bucket exists. Buckets are never created here.
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("check bucket %q: %w", b.name, err)
	}
	return nil
}

// Put streams reader into a resumable upload
func (b *Backend) Put(ctx context.Context, locator string, reader io.Reader, size int64, contentType string) error {
	w := b.bucket.Object(locator).NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, reader)
	if err != nil {
		w.Close()
		return fmt.Errorf("write object %q: %w", locator, err)
	}
	if size >= 0 && n != size {
		w.Close()
		return fmt.Errorf("write object %q: expected %d bytes, got %d", locator, size, n)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %q: %w", locator, err)
	}
	return nil
}

// Get opens a reader on the object
func (b *Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	r, err := b.bucket.Object(locator).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, s3lite.ErrBlobNotFound
		}
		return nil, fmt.Errorf("read object %q: %w", locator, err)
	}
	return r, nil
}

// Stat returns object attributes
func (b *Backend) Stat(ctx context.Context, locator string) (*s3lite.BlobInfo, error) {
	attrs, err := b.bucket.Object(locator).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, s3lite.ErrBlobNotFound
		}
		return nil, fmt.Errorf("stat object %q: %w", locator, err)
	}
	return toBlobInfo(attrs), nil
}

// Delete removes the object
func (b *Backend) Delete(ctx context.Context, locator string) error {
	err := b.bucket.Object(locator).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return s3lite.ErrBlobNotFound
		}
		return fmt.Errorf("delete object %q: %w", locator, err)
	}
	return nil
}

// List iterates objects under prefix
func (b *Backend) List(ctx context.Context, prefix string, fn func(s3lite.BlobInfo) error) error {
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		if err := fn(*toBlobInfo(attrs)); err != nil {
			return err
		}
	}
}

func toBlobInfo(attrs *storage.ObjectAttrs) *s3lite.BlobInfo {
	return &s3lite.BlobInfo{
		Locator:     attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		UpdatedAt:   attrs.Updated,
	}
}
