package s3lite

import (
	"context"
	"io"
)

// Service defines the main interface for the s3lite gateway
type Service interface {
	// Bucket operations
	CreateBucket(ctx context.Context, name string) (*Bucket, error)
	GetBucket(ctx context.Context, name string) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]*Bucket, error)
	DeleteBucket(ctx context.Context, name string) error

	// Object operations
	PutObject(ctx context.Context, req PutObjectRequest) (*Object, error)
	HeadObject(ctx context.Context, bucketName, objectKey string) (*Object, error)
	GetObject(ctx context.Context, bucketName, objectKey string) (*Object, io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucketName, objectKey string) error
	ListObjects(ctx context.Context, bucketName string) ([]*Object, error)

	// Presigned URLs
	PresignObject(ctx context.Context, req PresignObjectRequest) (*PresignedURL, error)
}
