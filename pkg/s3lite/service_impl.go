package s3lite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

// service implements the Service interface
type service struct {
	repository    Repository
	store         BlobStore
	uploader      *Uploader
	signer        *presigned.Signer
	publicBaseURL string
	eventSink     EventSink
	logger        *slog.Logger
	now           func() time.Time

	// writes serializes put and delete per locator within this process.
	writes keyLocks
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithUploader replaces the default streaming uploader
func WithUploader(u *Uploader) Option {
	return func(s *service) {
		s.uploader = u
	}
}

// WithSigner sets the presigned URL signer
func WithSigner(signer *presigned.Signer) Option {
	return func(s *service) {
		s.signer = signer
	}
}

// WithPublicBaseURL sets the externally visible base URL used in presigned URLs
func WithPublicBaseURL(baseURL string) Option {
	return func(s *service) {
		s.publicBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink: NewNoopEventSink(),
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.uploader == nil {
		s.uploader = NewUploader()
	}

	return s, nil
}

// ObjectPath is the canonical request path for an object. It is the string
// presigned URLs are signed over and matches the decoded request path.
func ObjectPath(bucketName, objectKey string) string {
	return "/buckets/" + bucketName + "/objects/" + objectKey
}

// EscapedObjectPath is ObjectPath with each key segment percent-encoded for use in a URL.
func EscapedObjectPath(bucketName, objectKey string) string {
	segments := strings.Split(objectKey, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "/buckets/" + url.PathEscape(bucketName) + "/objects/" + strings.Join(segments, "/")
}

func normalizeKey(key string) (string, error) {
	if err := ValidateObjectKey(key); err != nil {
		return "", err
	}
	return strings.TrimLeft(key, "/"), nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return E(KindOf(err), op, err)
}

// Bucket operations

func (s *service) CreateBucket(ctx context.Context, name string) (*Bucket, error) {
	if err := ValidateBucketName(name); err != nil {
		return nil, wrap("create bucket", err)
	}

	bucket := &Bucket{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repository.CreateBucket(ctx, bucket); err != nil {
		return nil, wrap("create bucket", err)
	}

	if err := s.eventSink.BucketCreated(ctx, bucket); err != nil {
		s.logger.Warn("event sink failed", "event", "bucket_created", "bucket", name, "err", err)
	}

	return bucket, nil
}

func (s *service) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	bucket, err := s.repository.GetBucketByName(ctx, name)
	if err != nil {
		return nil, wrap("get bucket", err)
	}
	return bucket, nil
}

func (s *service) ListBuckets(ctx context.Context) ([]*Bucket, error) {
	buckets, err := s.repository.ListBuckets(ctx)
	if err != nil {
		return nil, wrap("list buckets", err)
	}
	return buckets, nil
}

func (s *service) DeleteBucket(ctx context.Context, name string) error {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return err
	}

	objects, err := s.repository.ListObjects(ctx, bucket.ID)
	if err != nil {
		return wrap("delete bucket", err)
	}

	// Blobs first. If any delete fails the metadata stays intact.
	for _, obj := range objects {
		if err := s.deleteBlob(ctx, Locator(bucket.Name, obj.ObjectKey)); err != nil {
			return wrap("delete bucket", err)
		}
	}

	if err := s.repository.DeleteBucketCascade(ctx, bucket.ID); err != nil {
		return wrap("delete bucket", err)
	}

	if err := s.eventSink.BucketDeleted(ctx, bucket); err != nil {
		s.logger.Warn("event sink failed", "event", "bucket_deleted", "bucket", name, "err", err)
	}

	return nil
}

// Object operations

func (s *service) PutObject(ctx context.Context, req PutObjectRequest) (*Object, error) {
	key, err := normalizeKey(req.ObjectKey)
	if err != nil {
		return nil, wrap("put object", err)
	}

	bucket, err := s.GetBucket(ctx, req.BucketName)
	if err != nil {
		return nil, err
	}

	locator := Locator(bucket.Name, key)
	unlock := s.writes.lock(locator)
	defer unlock()

	existing, err := s.repository.GetObject(ctx, bucket.ID, key)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return nil, wrap("put object", err)
	}
	if existing != nil && !req.Overwrite {
		return nil, E(KindConflict, "put object", ErrObjectExists)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	result, err := s.uploader.Upload(ctx, s.store, locator, contentType, req.Body)
	if err != nil {
		return nil, wrap("put object", err)
	}

	now := s.now().UTC()
	obj := &Object{
		ID:          uuid.New(),
		BucketID:    bucket.ID,
		ObjectKey:   key,
		Size:        result.Size,
		Checksum:    result.Checksum,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		obj.ID = existing.ID
		obj.CreatedAt = existing.CreatedAt
	}

	// Metadata is committed only now that the blob is durable.
	if req.Overwrite {
		err = s.repository.UpsertObject(ctx, obj)
	} else {
		err = s.repository.CreateObject(ctx, obj)
	}
	if err != nil {
		s.logger.Error("metadata commit failed after blob write", "locator", locator, "err", err)
		return nil, wrap("put object", err)
	}

	if err := s.eventSink.ObjectStored(ctx, bucket, obj); err != nil {
		s.logger.Warn("event sink failed", "event", "object_stored", "locator", locator, "err", err)
	}

	return obj, nil
}

func (s *service) lookup(ctx context.Context, op, bucketName, objectKey string) (*Bucket, *Object, error) {
	key, err := normalizeKey(objectKey)
	if err != nil {
		return nil, nil, wrap(op, err)
	}
	bucket, err := s.repository.GetBucketByName(ctx, bucketName)
	if err != nil {
		return nil, nil, wrap(op, err)
	}
	obj, err := s.repository.GetObject(ctx, bucket.ID, key)
	if err != nil {
		return nil, nil, wrap(op, err)
	}
	return bucket, obj, nil
}

func (s *service) HeadObject(ctx context.Context, bucketName, objectKey string) (*Object, error) {
	_, obj, err := s.lookup(ctx, "head object", bucketName, objectKey)
	return obj, err
}

func (s *service) GetObject(ctx context.Context, bucketName, objectKey string) (*Object, io.ReadCloser, error) {
	bucket, obj, err := s.lookup(ctx, "get object", bucketName, objectKey)
	if err != nil {
		return nil, nil, err
	}

	locator := Locator(bucket.Name, obj.ObjectKey)
	rc, err := s.store.Get(ctx, locator)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			s.logger.Error("metadata references missing blob", "locator", locator)
		}
		return nil, nil, wrap("get object", &StorageError{Locator: locator, Op: "get", Err: err})
	}

	return obj, rc, nil
}

func (s *service) DeleteObject(ctx context.Context, bucketName, objectKey string) error {
	key, err := normalizeKey(objectKey)
	if err != nil {
		return wrap("delete object", err)
	}
	unlock := s.writes.lock(Locator(bucketName, key))
	defer unlock()

	bucket, obj, err := s.lookup(ctx, "delete object", bucketName, key)
	if err != nil {
		return err
	}

	if err := s.deleteBlob(ctx, Locator(bucket.Name, obj.ObjectKey)); err != nil {
		return wrap("delete object", err)
	}

	if err := s.repository.DeleteObject(ctx, obj.ID); err != nil {
		return wrap("delete object", err)
	}

	if err := s.eventSink.ObjectDeleted(ctx, bucket, obj); err != nil {
		s.logger.Warn("event sink failed", "event", "object_deleted", "key", obj.ObjectKey, "err", err)
	}

	return nil
}

// deleteBlob treats an already-missing blob as deleted.
func (s *service) deleteBlob(ctx context.Context, locator string) error {
	err := s.store.Delete(ctx, locator)
	if err == nil || errors.Is(err, ErrBlobNotFound) {
		return nil
	}
	return E(KindInternal, "", &StorageError{Locator: locator, Op: "delete", Err: err})
}

func (s *service) ListObjects(ctx context.Context, bucketName string) ([]*Object, error) {
	bucket, err := s.GetBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}
	objects, err := s.repository.ListObjects(ctx, bucket.ID)
	if err != nil {
		return nil, wrap("list objects", err)
	}
	return objects, nil
}

// Presigned URLs

func (s *service) PresignObject(ctx context.Context, req PresignObjectRequest) (*PresignedURL, error) {
	if s.signer == nil || !s.signer.IsEnabled() {
		return nil, E(KindConfig, "presign object", fmt.Errorf("PRESIGN_SECRET %w", ErrNotConfigured))
	}

	if req.Method != http.MethodGet && req.Method != http.MethodPut {
		return nil, E(KindInvalid, "presign object", fmt.Errorf("method must be GET or PUT, got %q", req.Method))
	}
	if req.ExpiresIn < MinPresignExpiry || req.ExpiresIn > MaxPresignExpiry {
		return nil, E(KindInvalid, "presign object",
			fmt.Errorf("expires_in must be between %d and %d seconds", int(MinPresignExpiry.Seconds()), int(MaxPresignExpiry.Seconds())))
	}

	key, err := normalizeKey(req.ObjectKey)
	if err != nil {
		return nil, wrap("presign object", err)
	}

	bucket, err := s.GetBucket(ctx, req.BucketName)
	if err != nil {
		return nil, err
	}

	signed, err := s.signer.SignURL(presigned.URLRequest{
		BaseURL:     s.publicBaseURL,
		Method:      req.Method,
		Path:        ObjectPath(bucket.Name, key),
		EscapedPath: EscapedObjectPath(bucket.Name, key),
		ExpiresIn:   req.ExpiresIn,
		ContentType: req.ContentType,
	})
	if err != nil {
		if errors.Is(err, presigned.ErrNoSecretKey) {
			return nil, E(KindConfig, "presign object", err)
		}
		return nil, wrap("presign object", err)
	}

	return &PresignedURL{
		URL:       signed.URL,
		Method:    req.Method,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}
