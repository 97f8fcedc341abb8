package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tendant/s3lite/pkg/s3lite"
)

const tempPrefix = ".s3lite-tmp-"

// Backend is a filesystem implementation of the s3lite.BlobStore interface.
// Locators map to paths below BaseDir.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	abs, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: abs}, nil
}

// path resolves locator below the base directory. Locators must already be
// in clean form; otherwise two locators could share one file.
func (b *Backend) path(locator string) (string, error) {
	if locator == "" || path.Clean(locator) != locator || path.IsAbs(locator) {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	p := filepath.Join(b.baseDir, filepath.FromSlash(locator))
	if !strings.HasPrefix(p, b.baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("locator %q escapes base directory", locator)
	}
	return p, nil
}

// Put writes to a temp file next to the target and renames it into place,
// so readers never observe a partial blob.
func (b *Backend) Put(ctx context.Context, locator string, reader io.Reader, size int64, contentType string) error {
	filePath, err := b.path(locator)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && n != size {
		tmp.Close()
		return fmt.Errorf("short write: expected %d bytes, got %d", size, n)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Get opens the file for streaming
func (b *Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	filePath, err := b.path(locator)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, s3lite.ErrBlobNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Stat returns file information. The content type is sniffed from the first bytes.
func (b *Backend) Stat(ctx context.Context, locator string) (*s3lite.BlobInfo, error) {
	filePath, err := b.path(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, s3lite.ErrBlobNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	contentType := s3lite.DefaultContentType
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &s3lite.BlobInfo{
		Locator:     locator,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// Delete removes the file
func (b *Backend) Delete(ctx context.Context, locator string) error {
	filePath, err := b.path(locator)
	if err != nil {
		return err
	}

	err = os.Remove(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return s3lite.ErrBlobNotFound
	} else if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List walks the base directory in lexical order. In-flight temp files are skipped.
func (b *Backend) List(ctx context.Context, prefix string, fn func(s3lite.BlobInfo) error) error {
	return filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		locator := filepath.ToSlash(rel)
		if !strings.HasPrefix(locator, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(s3lite.BlobInfo{
			Locator:   locator,
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	})
}

// Ping checks the base directory is still there
func (b *Backend) Ping(ctx context.Context) error {
	info, err := os.Stat(b.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", b.baseDir)
	}
	return nil
}
