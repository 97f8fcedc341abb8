package s3lite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

// DefaultChunkSize is the read granularity of the streaming uploader.
const DefaultChunkSize = 1 << 20

// UploadResult is what the uploader learned while streaming a body.
type UploadResult struct {
	Size     int64
	Checksum string // hex SHA-256
}

// Uploader streams a request body to a BlobStore while computing its size and
// SHA-256 in the same pass. The body is staged in a temp file so the backend
// receives a seekable reader of known length and can retry on its own.
type Uploader struct {
	chunkSize  int
	stagingDir string
	maxSize    int64
}

// UploaderOption configures an Uploader
type UploaderOption func(*Uploader)

// WithChunkSize sets the read buffer size (default 1 MiB)
func WithChunkSize(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.chunkSize = n
		}
	}
}

// WithStagingDir sets where temp files are created (default os.TempDir)
func WithStagingDir(dir string) UploaderOption {
	return func(u *Uploader) {
		u.stagingDir = dir
	}
}

// WithMaxSize limits the accepted body size; 0 means unlimited
func WithMaxSize(n int64) UploaderOption {
	return func(u *Uploader) {
		u.maxSize = n
	}
}

// NewUploader creates an Uploader with the given options
func NewUploader(opts ...UploaderOption) *Uploader {
	u := &Uploader{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload consumes body and stores it at locator. Nothing is written to the
// store unless the whole body was read successfully.
func (u *Uploader) Upload(ctx context.Context, store BlobStore, locator, contentType string, body io.Reader) (*UploadResult, error) {
	staging, err := os.CreateTemp(u.stagingDir, "s3lite-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		staging.Close()
		os.Remove(staging.Name())
	}()

	result, err := u.stage(ctx, body, staging)
	if err != nil {
		return nil, err
	}

	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind staging file: %w", err)
	}

	if err := store.Put(ctx, locator, staging, result.Size, contentType); err != nil {
		return nil, &StorageError{Locator: locator, Op: "put", Err: err}
	}

	return result, nil
}

// Digest hashes and counts body without storing it.
func (u *Uploader) Digest(ctx context.Context, body io.Reader) (*UploadResult, error) {
	return u.stage(ctx, body, io.Discard)
}

// stage copies body to sink chunk by chunk, feeding each chunk to the hash.
func (u *Uploader) stage(ctx context.Context, body io.Reader, sink io.Writer) (*UploadResult, error) {
	var (
		h    hash.Hash = sha256.New()
		size int64
		buf  = make([]byte, u.chunkSize)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			size += int64(n)
			if u.maxSize > 0 && size > u.maxSize {
				return nil, E(KindTooLarge, "upload", ErrUploadTooLarge)
			}
			chunk := buf[:n]
			h.Write(chunk)
			if _, err := sink.Write(chunk); err != nil {
				return nil, fmt.Errorf("write staging chunk: %w", err)
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		return nil, E(KindInvalid, "read body", readErr)
	}

	return &UploadResult{
		Size:     size,
		Checksum: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
