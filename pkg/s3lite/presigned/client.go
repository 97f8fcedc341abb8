package presigned

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrChecksumMismatch is returned when transferred bytes do not
// hash to the server's X-Checksum-Sha256.
var ErrChecksumMismatch = errors.New("presigned: checksum mismatch")

// ChecksumHeader is the response header carrying the object's SHA-256
const ChecksumHeader = "X-Checksum-Sha256"

// Client uploads to and downloads from presigned URLs
type Client struct {
	httpClient   *retryablehttp.Client
	progressFunc ProgressFunc
}

// ProgressFunc is called during transfers with the number of bytes moved so far
type ProgressFunc func(bytesTransferred int64)

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// NewClient creates a new presigned URL client
func NewClient(opts ...ClientOption) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Minute
	rc.Logger = nil

	c := &Client{httpClient: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient.HTTPClient = client
	}
}

// WithRetry configures retry behavior. Client errors (4xx) are never retried.
func WithRetry(attempts int, minWait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.RetryMax = attempts
		c.httpClient.RetryWaitMin = minWait
		c.httpClient.RetryWaitMax = maxWait
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) ClientOption {
	return func(c *Client) {
		c.progressFunc = fn
	}
}

// TransferResult describes the bytes moved by Upload or Download
type TransferResult struct {
	Size     int64  `json:"size"`
	Checksum string `json:"checksum_sha256"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("presigned: server returned %d: %s", e.StatusCode, e.Body)
}

// Upload PUTs data to a presigned URL. data is rewound before each retry.
// contentType must equal the ct the URL was signed with, if any.
func (c *Client) Upload(ctx context.Context, presignedURL string, data io.ReadSeeker, contentType string) (*TransferResult, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		if _, err := data.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if c.progressFunc == nil {
			return data, nil
		}
		return &progressReader{reader: data, callback: c.progressFunc}, nil
	})

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, presignedURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result TransferResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &result, nil
}

// Download GETs a presigned URL into w and verifies the SHA-256 of what was
// received against the X-Checksum-Sha256 response header when present.
func (c *Client) Download(ctx context.Context, presignedURL string, w io.Writer) (*TransferResult, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, presignedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	h := sha256.New()
	var reader io.Reader = io.TeeReader(resp.Body, h)
	if c.progressFunc != nil {
		reader = &progressReader{reader: reader, callback: c.progressFunc}
	}

	n, err := io.Copy(w, reader)
	if err != nil {
		return nil, fmt.Errorf("download failed after %d bytes: %w", n, err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if want := resp.Header.Get(ChecksumHeader); want != "" && want != sum {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, want, sum)
	}

	return &TransferResult{Size: n, Checksum: sum}, nil
}

// PresignRequest is the body of the server's presign endpoint
type PresignRequest struct {
	Method      string `json:"method"`
	ExpiresIn   int    `json:"expires_in"`
	ContentType string `json:"content_type,omitempty"`
}

// PresignResponse is the server's answer to a presign request
type PresignResponse struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Presign asks the server at baseURL for a presigned URL, authenticating with apiKey.
func (c *Client) Presign(ctx context.Context, baseURL, apiKey, bucket, key string, preq PresignRequest) (*PresignResponse, error) {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/buckets/" + url.PathEscape(bucket) +
		"/objects/" + strings.Join(segments, "/") + "/presign"

	payload, err := json.Marshal(preq)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presign failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out PresignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode presign response: %w", err)
	}
	return &out, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// progressReader wraps an io.Reader to track transfer progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
