package presigned_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestClientUpload(t *testing.T) {
	var gotBody []byte
	var gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"size":            len(gotBody),
			"checksum_sha256": sha256Hex(gotBody),
		})
	}))
	defer srv.Close()

	var progress int64
	client := presigned.NewClient(presigned.WithProgress(func(n int64) { progress = n }))
	result, err := client.Upload(t.Context(), srv.URL+"/buckets/a/objects/b?sig=x&expires=1", strings.NewReader("hello"), "text/plain")
	require.NoError(t, err)

	assert.Equal(t, "hello", string(gotBody))
	assert.Equal(t, "text/plain", gotCT)
	assert.Equal(t, int64(5), result.Size)
	assert.Equal(t, sha256Hex([]byte("hello")), result.Checksum)
	assert.Equal(t, int64(5), progress)
}

func TestClientUploadRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "payload", string(body))
		json.NewEncoder(w).Encode(map[string]interface{}{"size": len(body), "checksum_sha256": sha256Hex(body)})
	}))
	defer srv.Close()

	client := presigned.NewClient(presigned.WithRetry(2, time.Millisecond, 5*time.Millisecond))
	_, err := client.Upload(t.Context(), srv.URL, strings.NewReader("payload"), "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientUploadDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"presign_expired"}}`))
	}))
	defer srv.Close()

	client := presigned.NewClient(presigned.WithRetry(3, time.Millisecond, 5*time.Millisecond))
	_, err := client.Upload(t.Context(), srv.URL, strings.NewReader("x"), "")

	var statusErr *presigned.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "presign_expired")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientDownloadVerifiesChecksum(t *testing.T) {
	payload := []byte("hello")

	t.Run("matching checksum", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(presigned.ChecksumHeader, sha256Hex(payload))
			w.Write(payload)
		}))
		defer srv.Close()

		var buf bytes.Buffer
		result, err := presigned.NewClient().Download(t.Context(), srv.URL, &buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", buf.String())
		assert.Equal(t, int64(5), result.Size)
	})

	t.Run("corrupted body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(presigned.ChecksumHeader, sha256Hex(payload))
			w.Write([]byte("jello"))
		}))
		defer srv.Close()

		_, err := presigned.NewClient().Download(t.Context(), srv.URL, io.Discard)
		assert.ErrorIs(t, err, presigned.ErrChecksumMismatch)
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := presigned.NewClient().Download(t.Context(), srv.URL, io.Discard)
		var statusErr *presigned.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	})
}

func TestClientPresign(t *testing.T) {
	expiresAt := time.Unix(1700000300, 0).UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/buckets/docs/objects/dir/hello%20world.txt/presign", r.URL.EscapedPath())
		assert.Equal(t, "secret-key", r.Header.Get(presigned.APIKeyHeader))

		var req presigned.PresignRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, presigned.PresignRequest{Method: "PUT", ExpiresIn: 60, ContentType: "text/plain"}, req)

		json.NewEncoder(w).Encode(presigned.PresignResponse{URL: "http://example/x?sig=s", Method: "PUT", ExpiresAt: expiresAt})
	}))
	defer srv.Close()

	out, err := presigned.NewClient().Presign(t.Context(), srv.URL+"/", "secret-key", "docs", "/dir/hello world.txt",
		presigned.PresignRequest{Method: "PUT", ExpiresIn: 60, ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "http://example/x?sig=s", out.URL)
	assert.True(t, expiresAt.Equal(out.ExpiresAt))

	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := presigned.NewClient().Presign(t.Context(), srv.URL, "bad", "docs", "k", presigned.PresignRequest{Method: "GET", ExpiresIn: 60})
		var se *presigned.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	})
}
