package presigned_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

const testAPIKey = "test-api-key"

var testNow = time.Unix(1700000000, 0)

func newTestAuthorizer(apiKey string) (*presigned.Authorizer, *presigned.Signer) {
	signer := presigned.New(
		presigned.WithSecretKey(testSecret),
		presigned.WithClock(fixedClock(testNow)),
	)
	return presigned.NewAuthorizer(signer, apiKey), signer
}

func presignedTarget(t *testing.T, signer *presigned.Signer, method, path string, expires int64, ct string) string {
	t.Helper()
	sig, err := signer.Sign(method, path, expires, ct)
	require.NoError(t, err)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	if ct != "" {
		q.Set("ct", ct)
	}
	return path + "?" + q.Encode()
}

func serve(a *presigned.Authorizer, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAuthorizerAPIKey(t *testing.T) {
	a, _ := newTestAuthorizer(testAPIKey)

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
		req.Header.Set("X-API-Key", testAPIKey)
		rec, called := serve(a, req)
		assert.True(t, called)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
		req.Header.Set("X-API-Key", testAPIKey+"x")
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("only one presign param falls back to key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/buckets?sig=abc", nil)
		req.Header.Set("X-API-Key", testAPIKey)
		_, called := serve(a, req)
		assert.True(t, called)
	})
}

func TestAuthorizerAPIKeyNotConfigured(t *testing.T) {
	a, _ := newTestAuthorizer("")

	req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
	req.Header.Set("X-API-Key", "")
	rec, called := serve(a, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "not_configured", errorCodeOf(t, rec))
}

func TestAuthorizerPresigned(t *testing.T) {
	a, signer := newTestAuthorizer(testAPIKey)
	path := "/buckets/docs/objects/a/b.txt"
	future := testNow.Add(time.Minute).Unix()

	t.Run("valid get needs no api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, presignedTarget(t, signer, "GET", path, future, ""), nil)
		rec, called := serve(a, req)
		assert.True(t, called)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("expiry equal to now is accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, presignedTarget(t, signer, "GET", path, testNow.Unix(), ""), nil)
		_, called := serve(a, req)
		assert.True(t, called)
	})

	t.Run("expired is rejected even with valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, presignedTarget(t, signer, "GET", path, testNow.Unix()-1, ""), nil)
		req.Header.Set("X-API-Key", testAPIKey)
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "presign_expired", errorCodeOf(t, rec))
	})

	t.Run("malformed expires", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, path+"?expires=soon&sig=abc", nil)
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_expires", errorCodeOf(t, rec))
	})

	t.Run("method is bound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, presignedTarget(t, signer, "GET", path, future, ""), nil)
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, "invalid_signature", errorCodeOf(t, rec))
	})

	t.Run("path is bound", func(t *testing.T) {
		target := presignedTarget(t, signer, "GET", path, future, "")
		u, err := url.Parse(target)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/buckets/docs/objects/other?"+u.RawQuery, nil)
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("escaped key verifies against decoded path", func(t *testing.T) {
		sig, err := signer.Sign("GET", "/buckets/docs/objects/my file.txt", future, "")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet,
			"/buckets/docs/objects/my%20file.txt?expires="+strconv.FormatInt(future, 10)+"&sig="+sig, nil)
		_, called := serve(a, req)
		assert.True(t, called)
	})
}

func TestAuthorizerContentTypeBinding(t *testing.T) {
	a, signer := newTestAuthorizer(testAPIKey)
	path := "/buckets/docs/objects/note.txt"
	future := testNow.Add(time.Minute).Unix()
	target := presignedTarget(t, signer, "PUT", path, future, "text/plain")

	t.Run("matching content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, target, nil)
		req.Header.Set("Content-Type", "text/plain")
		_, called := serve(a, req)
		assert.True(t, called)
	})

	t.Run("mismatched content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, target, nil)
		req.Header.Set("Content-Type", "application/json")
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "content_type_mismatch", errorCodeOf(t, rec))
	})

	t.Run("tampered ct fails signature", func(t *testing.T) {
		u, err := url.Parse(target)
		require.NoError(t, err)
		q := u.Query()
		q.Set("ct", "application/json")
		req := httptest.NewRequest(http.MethodPut, path+"?"+q.Encode(), nil)
		req.Header.Set("Content-Type", "application/json")
		rec, called := serve(a, req)
		assert.False(t, called)
		assert.Equal(t, "invalid_signature", errorCodeOf(t, rec))
	})

	t.Run("multipart defers the check", func(t *testing.T) {
		var constraint string
		h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			constraint, _ = presigned.ContentTypeConstraint(r.Context())
			assert.NoError(t, presigned.CheckContentType(r.Context(), "text/plain"))
			assert.ErrorIs(t, presigned.CheckContentType(r.Context(), "application/json"), presigned.ErrContentTypeMismatch)
		}))
		req := httptest.NewRequest(http.MethodPut, target, nil)
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "text/plain", constraint)
	})
}

func TestAuthorizerPresignedWithoutSecret(t *testing.T) {
	a := presigned.NewAuthorizer(presigned.New(), testAPIKey)

	req := httptest.NewRequest(http.MethodGet, "/buckets/a/objects/b?expires=1&sig=abc", nil)
	rec, called := serve(a, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCheckContentTypeWithoutConstraint(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", nil)
	assert.NoError(t, presigned.CheckContentType(req.Context(), "anything"))
}
