package s3lite

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthorized
	KindNotFound
	KindConflict
	KindTooLarge
	KindConfig
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTooLarge:
		return "too_large"
	case KindConfig:
		return "config"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error types
var (
	// ErrBucketNotFound indicates a bucket was not found
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectNotFound indicates an object was not found
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketExists indicates a bucket name is already taken
	ErrBucketExists = errors.New("bucket already exists")

	// ErrObjectExists indicates an object exists and overwrite was disabled
	ErrObjectExists = errors.New("object already exists (overwrite=false)")

	// ErrBlobNotFound is returned by blob stores when nothing is stored at a locator
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidBucketName indicates a bucket name failed validation
	ErrInvalidBucketName = errors.New("invalid bucket name")

	// ErrInvalidObjectKey indicates an object key failed validation
	ErrInvalidObjectKey = errors.New("invalid object key")

	// ErrUploadTooLarge indicates the request body exceeded the configured limit
	ErrUploadTooLarge = errors.New("upload exceeds maximum size")

	// ErrNotConfigured indicates a required piece of server configuration is missing
	ErrNotConfigured = errors.New("not configured")
)

// Error carries a Kind and the failing operation alongside the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation name. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err. Explicit *Error kinds win; otherwise the
// package sentinels are recognised and anything else is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrBucketNotFound), errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrBlobNotFound):
		return KindNotFound
	case errors.Is(err, ErrBucketExists), errors.Is(err, ErrObjectExists):
		return KindConflict
	case errors.Is(err, ErrInvalidBucketName), errors.Is(err, ErrInvalidObjectKey):
		return KindInvalid
	case errors.Is(err, ErrUploadTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrNotConfigured):
		return KindConfig
	case errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	}
	return KindInternal
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Locator string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for locator %s: %v", e.Op, e.Locator, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
