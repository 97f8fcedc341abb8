package s3lite_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/s3lite/pkg/s3lite"
	memorystorage "github.com/tendant/s3lite/pkg/s3lite/storage/memory"
)

func TestUploaderMultiChunkChecksum(t *testing.T) {
	payload := make([]byte, 3*s3lite.DefaultChunkSize+12345)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	want := sha256.Sum256(payload)

	store := memorystorage.New()
	uploader := s3lite.NewUploader(s3lite.WithStagingDir(t.TempDir()))

	result, err := uploader.Upload(context.Background(), store, "bkt/big.bin", "application/octet-stream", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), result.Size)
	assert.Equal(t, hex.EncodeToString(want[:]), result.Checksum)

	rc, err := store.Get(context.Background(), "bkt/big.bin")
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, stored))
}

func TestUploaderSmallChunks(t *testing.T) {
	uploader := s3lite.NewUploader(s3lite.WithChunkSize(3))

	result, err := uploader.Digest(context.Background(), strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Size)
	assert.Equal(t, sha256Hex("hello"), result.Checksum)
}

func TestUploaderEmptyBody(t *testing.T) {
	store := memorystorage.New()
	uploader := s3lite.NewUploader(s3lite.WithStagingDir(t.TempDir()))

	result, err := uploader.Upload(context.Background(), store, "bkt/empty", "", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Size)
	assert.Equal(t, sha256Hex(""), result.Checksum)
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := len(p)
	if n > f.after {
		n = f.after
	}
	f.after -= n
	return n, nil
}

func TestUploaderBodyErrorWritesNothing(t *testing.T) {
	store := memorystorage.New()
	dir := t.TempDir()
	uploader := s3lite.NewUploader(s3lite.WithStagingDir(dir), s3lite.WithChunkSize(4))

	_, err := uploader.Upload(context.Background(), store, "bkt/partial", "", &failingReader{after: 10})
	require.Error(t, err)
	assert.Equal(t, s3lite.KindInvalid, s3lite.KindOf(err))

	_, err = store.Stat(context.Background(), "bkt/partial")
	assert.ErrorIs(t, err, s3lite.ErrBlobNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging file must be removed")
}

func TestUploaderMaxSize(t *testing.T) {
	store := memorystorage.New()
	uploader := s3lite.NewUploader(s3lite.WithStagingDir(t.TempDir()), s3lite.WithMaxSize(5))

	_, err := uploader.Upload(context.Background(), store, "bkt/ok", "", strings.NewReader("hello"))
	assert.NoError(t, err)

	_, err = uploader.Upload(context.Background(), store, "bkt/big", "", strings.NewReader("hello!"))
	assert.ErrorIs(t, err, s3lite.ErrUploadTooLarge)
	assert.Equal(t, s3lite.KindTooLarge, s3lite.KindOf(err))
}

func TestUploaderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s3lite.NewUploader().Digest(ctx, strings.NewReader("hello"))
	assert.ErrorIs(t, err, context.Canceled)
}
