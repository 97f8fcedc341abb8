package s3lite

import (
	"io"
	"time"
)

// Request DTOs

// PutObjectRequest contains parameters for storing an object
type PutObjectRequest struct {
	BucketName  string
	ObjectKey   string
	ContentType string
	Body        io.Reader
	// Overwrite replaces an existing object; when false an existing key is a conflict.
	Overwrite bool
}

// PresignObjectRequest contains parameters for issuing a presigned URL
type PresignObjectRequest struct {
	BucketName  string
	ObjectKey   string
	Method      string // GET or PUT
	ExpiresIn   time.Duration
	ContentType string // optional; binds PUT uploads to this content type
}
