package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/s3lite/pkg/s3lite"
)

type blob struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of the s3lite.BlobStore interface
type Backend struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		blobs: make(map[string]blob),
	}
}

// Put stores content at locator, replacing anything already there
func (b *Backend) Put(ctx context.Context, locator string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("short write: expected %d bytes, got %d", size, len(data))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[locator] = blob{
		data:        data,
		contentType: contentType,
		updatedAt:   time.Now(),
	}
	return nil
}

// Get streams the stored bytes
func (b *Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bl, exists := b.blobs[locator]
	if !exists {
		return nil, s3lite.ErrBlobNotFound
	}

	return io.NopCloser(bytes.NewReader(bl.data)), nil
}

// Stat retrieves metadata for a blob
func (b *Backend) Stat(ctx context.Context, locator string) (*s3lite.BlobInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bl, exists := b.blobs[locator]
	if !exists {
		return nil, s3lite.ErrBlobNotFound
	}

	return &s3lite.BlobInfo{
		Locator:     locator,
		Size:        int64(len(bl.data)),
		ContentType: bl.contentType,
		UpdatedAt:   bl.updatedAt,
	}, nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, locator string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.blobs[locator]; !exists {
		return s3lite.ErrBlobNotFound
	}

	delete(b.blobs, locator)
	return nil
}

// List visits blobs under prefix in lexical order
func (b *Backend) List(ctx context.Context, prefix string, fn func(s3lite.BlobInfo) error) error {
	b.mu.RLock()
	infos := make([]s3lite.BlobInfo, 0, len(b.blobs))
	for locator, bl := range b.blobs {
		if !strings.HasPrefix(locator, prefix) {
			continue
		}
		infos = append(infos, s3lite.BlobInfo{
			Locator:     locator,
			Size:        int64(len(bl.data)),
			ContentType: bl.contentType,
			UpdatedAt:   bl.updatedAt,
		})
	}
	b.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Locator < infos[j].Locator })

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// Ping always succeeds
func (b *Backend) Ping(ctx context.Context) error {
	return nil
}
