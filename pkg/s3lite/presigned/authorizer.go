package presigned

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
)

// APIKeyHeader carries the static API key
const APIKeyHeader = "X-API-Key"

type contextKey string

const contentTypeConstraintKey contextKey = "presigned:content_type"

// Authorizer is the single gate in front of every bucket and object endpoint.
// A request carrying both sig and expires is checked only as a presigned
// request; anything else must present the static API key.
type Authorizer struct {
	signer *Signer
	apiKey string
	logger *slog.Logger
}

// AuthorizerOption configures an Authorizer
type AuthorizerOption func(*Authorizer)

// WithLogger sets the logger used for rejected requests
func WithLogger(logger *slog.Logger) AuthorizerOption {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

// NewAuthorizer creates an Authorizer. A nil signer or empty apiKey is allowed;
// requests taking that path then fail closed.
func NewAuthorizer(signer *Signer, apiKey string, opts ...AuthorizerOption) *Authorizer {
	if signer == nil {
		signer = New()
	}
	a := &Authorizer{
		signer: signer,
		apiKey: apiKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize checks r and returns the request to pass downstream. When a
// content-type constraint must be checked against a multipart file part, the
// returned request carries it in its context (see ContentTypeConstraint).
func (a *Authorizer) Authorize(r *http.Request) (*http.Request, error) {
	q := r.URL.Query()
	if q.Get(QuerySignature) != "" && q.Get(QueryExpires) != "" {
		return a.authorizePresigned(r)
	}
	return r, a.authorizeAPIKey(r)
}

func (a *Authorizer) authorizeAPIKey(r *http.Request) error {
	if a.apiKey == "" {
		return ErrNotConfigured
	}
	got := r.Header.Get(APIKeyHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.apiKey)) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}

// authorizePresigned runs the checks in a fixed order; the first failure wins.
func (a *Authorizer) authorizePresigned(r *http.Request) (*http.Request, error) {
	if !a.signer.IsEnabled() {
		return r, ErrNoSecretKey
	}

	q := r.URL.Query()
	sig := q.Get(QuerySignature)
	expiresStr := q.Get(QueryExpires)
	signedCT := q.Get(QueryContentType)

	if sig == "" || expiresStr == "" {
		return r, ErrMissingParams
	}

	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return r, fmt.Errorf("%w: %q", ErrInvalidExpiration, expiresStr)
	}

	if a.signer.Now().Unix() > expires {
		return r, ErrExpired
	}

	if signedCT != "" {
		actual := r.Header.Get("Content-Type")
		if isMultipart(actual) {
			// The file part's type is only known once the body is parsed.
			r = r.WithContext(context.WithValue(r.Context(), contentTypeConstraintKey, signedCT))
		} else if actual != signedCT {
			return r, ErrContentTypeMismatch
		}
	}

	if err := a.signer.Verify(r.Method, r.URL.Path, expires, signedCT, sig); err != nil {
		return r, err
	}

	return r, nil
}

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "multipart/form-data"
}

// Middleware returns HTTP middleware that rejects unauthorized requests
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorized, err := a.Authorize(r)
		if err != nil {
			a.handleError(w, r, err)
			return
		}
		next.ServeHTTP(w, authorized)
	})
}

func (a *Authorizer) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnauthorized
	if IsConfigError(err) {
		status = http.StatusInternalServerError
		a.logger.Error("authorization not configured", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		a.logger.Info("request rejected", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, ErrorCode(err), err.Error())
}

// ContentTypeConstraint returns the signed content type that still has to be
// checked against a multipart file part.
func ContentTypeConstraint(ctx context.Context) (string, bool) {
	ct, ok := ctx.Value(contentTypeConstraintKey).(string)
	return ct, ok && ct != ""
}

// CheckContentType enforces a deferred constraint against the actual type.
func CheckContentType(ctx context.Context, actual string) error {
	if want, ok := ContentTypeConstraint(ctx); ok && want != actual {
		return fmt.Errorf("%w: signed %q, got %q", ErrContentTypeMismatch, want, actual)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
