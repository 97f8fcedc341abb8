package s3lite

import (
	"time"

	"github.com/google/uuid"
)

// Bucket is a logical namespace for objects.
type Bucket struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Object is the metadata row for a stored blob.
type Object struct {
	ID          uuid.UUID `json:"id"`
	BucketID    uuid.UUID `json:"bucket_id"`
	ObjectKey   string    `json:"object_key"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum_sha256"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BlobInfo describes a blob as seen by the backend.
type BlobInfo struct {
	Locator     string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// PresignedURL is a signed capability for one method on one object path.
type PresignedURL struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

const (
	// DefaultContentType is used when an upload does not declare one.
	DefaultContentType = "application/octet-stream"

	MinBucketNameLength = 3
	MaxBucketNameLength = 63
	MaxObjectKeyLength  = 1024

	MinPresignExpiry = 10 * time.Second
	MaxPresignExpiry = 24 * time.Hour
)
