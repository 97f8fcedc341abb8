package presigned_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey(testSecret))

	tests := []struct {
		name        string
		method      string
		path        string
		expires     int64
		contentType string
	}{
		{"get without ct", "GET", "/buckets/docs/objects/a/b.txt", 1700000000, ""},
		{"put with ct", "PUT", "/buckets/docs/objects/report.pdf", 1700000000, "application/pdf"},
		{"lowercase method", "put", "/buckets/docs/objects/x", 42, "text/plain"},
		{"unicode key", "GET", "/buckets/docs/objects/résumé 2024.txt", 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := signer.Sign(tt.method, tt.path, tt.expires, tt.contentType)
			require.NoError(t, err)
			assert.Len(t, sig, 64)

			assert.NoError(t, signer.Verify(tt.method, tt.path, tt.expires, tt.contentType, sig))
		})
	}
}

func TestSignIsCaseInsensitiveOnMethod(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey(testSecret))

	lower, err := signer.Sign("get", "/p", 10, "")
	require.NoError(t, err)
	upper, err := signer.Sign("GET", "/p", 10, "")
	require.NoError(t, err)

	assert.Equal(t, upper, lower)
}

func TestVerifyRejectsBitFlip(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey(testSecret))

	sig, err := signer.Sign("PUT", "/buckets/docs/objects/a", 1700000000, "text/plain")
	require.NoError(t, err)

	raw := []byte(sig)
	for i := range raw {
		flipped := make([]byte, len(raw))
		copy(flipped, raw)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		err := signer.Verify("PUT", "/buckets/docs/objects/a", 1700000000, "text/plain", string(flipped))
		assert.ErrorIs(t, err, presigned.ErrInvalidSignature, "position %d", i)
	}
}

func TestVerifyBindsEveryField(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey(testSecret))

	sig, err := signer.Sign("PUT", "/buckets/docs/objects/a", 100, "text/plain")
	require.NoError(t, err)

	assert.ErrorIs(t, signer.Verify("GET", "/buckets/docs/objects/a", 100, "text/plain", sig), presigned.ErrInvalidSignature)
	assert.ErrorIs(t, signer.Verify("PUT", "/buckets/docs/objects/b", 100, "text/plain", sig), presigned.ErrInvalidSignature)
	assert.ErrorIs(t, signer.Verify("PUT", "/buckets/docs/objects/a", 101, "text/plain", sig), presigned.ErrInvalidSignature)
	assert.ErrorIs(t, signer.Verify("PUT", "/buckets/docs/objects/a", 100, "", sig), presigned.ErrInvalidSignature)

	other := presigned.New(presigned.WithSecretKey("another-secret"))
	assert.ErrorIs(t, other.Verify("PUT", "/buckets/docs/objects/a", 100, "text/plain", sig), presigned.ErrInvalidSignature)
}

func TestSignerWithoutSecret(t *testing.T) {
	signer := presigned.New()

	assert.False(t, signer.IsEnabled())

	_, err := signer.Sign("GET", "/p", 1, "")
	assert.ErrorIs(t, err, presigned.ErrNoSecretKey)

	assert.ErrorIs(t, signer.Verify("GET", "/p", 1, "", "deadbeef"), presigned.ErrNoSecretKey)

	_, err = signer.SignURL(presigned.URLRequest{Method: "GET", Path: "/p", ExpiresIn: time.Minute})
	assert.ErrorIs(t, err, presigned.ErrNoSecretKey)
}

func TestSignURL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := presigned.New(
		presigned.WithSecretKey(testSecret),
		presigned.WithClock(fixedClock(now)),
	)

	signed, err := signer.SignURL(presigned.URLRequest{
		BaseURL:     "http://127.0.0.1:8000/",
		Method:      "PUT",
		Path:        "/buckets/docs/objects/my file.txt",
		EscapedPath: "/buckets/docs/objects/my%20file.txt",
		ExpiresIn:   10 * time.Minute,
		ContentType: "text/plain",
	})
	require.NoError(t, err)

	assert.Equal(t, now.Add(10*time.Minute).Unix(), signed.Expires)
	assert.Equal(t, now.Add(10*time.Minute).UTC(), signed.ExpiresAt)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8000", u.Host)
	assert.Equal(t, "/buckets/docs/objects/my file.txt", u.Path)
	assert.Equal(t, "/buckets/docs/objects/my%20file.txt", u.EscapedPath())
	assert.Equal(t, "1700000600", u.Query().Get("expires"))
	assert.Equal(t, "text/plain", u.Query().Get("ct"))

	// the signature covers the decoded path
	assert.NoError(t, signer.Verify("PUT", u.Path, signed.Expires, "text/plain", u.Query().Get("sig")))
}

func TestSignURLOmitsEmptyContentType(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey(testSecret))

	signed, err := signer.SignURL(presigned.URLRequest{Method: "GET", Path: "/buckets/a/objects/b", ExpiresIn: time.Minute})
	require.NoError(t, err)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.False(t, u.Query().Has("ct"))
	assert.Equal(t, "/buckets/a/objects/b", u.Path)
}

func TestSignURLDefaultExpiration(t *testing.T) {
	now := time.Unix(1000, 0)
	signer := presigned.New(
		presigned.WithSecretKey(testSecret),
		presigned.WithClock(fixedClock(now)),
		presigned.WithDefaultExpiration(5*time.Minute),
	)

	signed, err := signer.SignURL(presigned.URLRequest{Method: "GET", Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, int64(1300), signed.Expires)
}
