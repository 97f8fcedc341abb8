package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameter names carried by presigned URLs
const (
	QueryExpires     = "expires"
	QuerySignature   = "sig"
	QueryContentType = "ct"
)

// Signer generates and validates HMAC-signed presigned URLs
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: 1 * time.Hour,
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsEnabled returns true if a secret key is set
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// Now returns the signer's current time
func (s *Signer) Now() time.Time {
	return s.now()
}

// Sign returns the hex HMAC-SHA256 of the canonical message
//
//	UPPER(method) \n path \n expires \n contentType
//
// path is used exactly as given.
func (s *Signer) Sign(method, path string, expires int64, contentType string) (string, error) {
	if !s.IsEnabled() {
		return "", ErrNoSecretKey
	}
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(canonicalMessage(method, path, expires, contentType)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the signature and compares it in constant time
func (s *Signer) Verify(method, path string, expires int64, contentType, signature string) error {
	expected, err := s.Sign(method, path, expires, contentType)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

func canonicalMessage(method, path string, expires int64, contentType string) string {
	return strings.ToUpper(method) + "\n" + path + "\n" + strconv.FormatInt(expires, 10) + "\n" + contentType
}

// URLRequest describes a URL to sign
type URLRequest struct {
	BaseURL string
	Method  string
	// Path is the decoded request path the server will see; it is what gets signed.
	Path string
	// EscapedPath is Path as it should appear in the URL. Defaults to Path.
	EscapedPath string
	ExpiresIn   time.Duration
	ContentType string
}

// SignedURL is a ready-to-use presigned URL
type SignedURL struct {
	URL       string
	Expires   int64
	ExpiresAt time.Time
}

// SignURL builds an absolute presigned URL:
//
//	BaseURL + EscapedPath + "?expires=...&sig=...[&ct=...]"
func (s *Signer) SignURL(req URLRequest) (*SignedURL, error) {
	if !s.IsEnabled() {
		return nil, ErrNoSecretKey
	}

	expiresIn := req.ExpiresIn
	if expiresIn == 0 {
		expiresIn = s.defaultExpiration
	}
	expiresAt := s.now().Add(expiresIn).Truncate(time.Second)
	expires := expiresAt.Unix()

	sig, err := s.Sign(req.Method, req.Path, expires, req.ContentType)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set(QueryExpires, strconv.FormatInt(expires, 10))
	q.Set(QuerySignature, sig)
	if req.ContentType != "" {
		q.Set(QueryContentType, req.ContentType)
	}

	escaped := req.EscapedPath
	if escaped == "" {
		escaped = req.Path
	}

	return &SignedURL{
		URL:       strings.TrimRight(req.BaseURL, "/") + escaped + "?" + q.Encode(),
		Expires:   expires,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}
