package s3lite

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends. All objects live in
// one physical namespace addressed by locator strings (see Locator).
type BlobStore interface {
	// Put stores size bytes from reader at locator, replacing any previous blob.
	// size is -1 when unknown.
	Put(ctx context.Context, locator string, reader io.Reader, size int64, contentType string) error

	// Get opens the blob at locator for streaming. Returns ErrBlobNotFound if absent.
	Get(ctx context.Context, locator string) (io.ReadCloser, error)

	// Stat returns backend-side information about a blob.
	Stat(ctx context.Context, locator string) (*BlobInfo, error)

	// Delete removes the blob at locator. Backends that can tell report
	// ErrBlobNotFound when nothing was there; callers treat it as success.
	Delete(ctx context.Context, locator string) error

	// List calls fn for every blob whose locator starts with prefix.
	List(ctx context.Context, prefix string, fn func(BlobInfo) error) error

	// Ping checks the backend is reachable and its namespace exists.
	Ping(ctx context.Context) error
}

// Repository defines the interface for bucket and object metadata persistence
type Repository interface {
	// Bucket operations
	CreateBucket(ctx context.Context, bucket *Bucket) error
	GetBucketByName(ctx context.Context, name string) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]*Bucket, error)
	// DeleteBucketCascade removes the bucket's object rows, then the bucket row, as one unit.
	DeleteBucketCascade(ctx context.Context, bucketID uuid.UUID) error

	// Object operations
	// CreateObject inserts a new row and returns ErrObjectExists if the key is taken.
	CreateObject(ctx context.Context, object *Object) error
	// UpsertObject inserts or overwrites the row for (bucket_id, object_key).
	// On overwrite the persisted ID and CreatedAt are written back into object.
	UpsertObject(ctx context.Context, object *Object) error
	GetObject(ctx context.Context, bucketID uuid.UUID, objectKey string) (*Object, error)
	ListObjects(ctx context.Context, bucketID uuid.UUID) ([]*Object, error)
	DeleteObject(ctx context.Context, id uuid.UUID) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

// EventSink defines the interface for event handling
type EventSink interface {
	BucketCreated(ctx context.Context, bucket *Bucket) error
	BucketDeleted(ctx context.Context, bucket *Bucket) error
	ObjectStored(ctx context.Context, bucket *Bucket, object *Object) error
	ObjectDeleted(ctx context.Context, bucket *Bucket, object *Object) error
}
