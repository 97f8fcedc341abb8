package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/s3lite/pkg/s3lite"
)

type objectKey struct {
	bucketID uuid.UUID
	key      string
}

// Repository implements s3lite.Repository using in-memory storage
type Repository struct {
	mu            sync.RWMutex
	buckets       map[uuid.UUID]*s3lite.Bucket
	bucketsByName map[string]uuid.UUID
	objects       map[uuid.UUID]*s3lite.Object
	objectsByKey  map[objectKey]uuid.UUID
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		buckets:       make(map[uuid.UUID]*s3lite.Bucket),
		bucketsByName: make(map[string]uuid.UUID),
		objects:       make(map[uuid.UUID]*s3lite.Object),
		objectsByKey:  make(map[objectKey]uuid.UUID),
	}
}

// Bucket operations

func (r *Repository) CreateBucket(ctx context.Context, bucket *s3lite.Bucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bucketsByName[bucket.Name]; exists {
		return s3lite.ErrBucketExists
	}

	bucketCopy := *bucket
	r.buckets[bucket.ID] = &bucketCopy
	r.bucketsByName[bucket.Name] = bucket.ID
	return nil
}

func (r *Repository) GetBucketByName(ctx context.Context, name string) (*s3lite.Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.bucketsByName[name]
	if !exists {
		return nil, s3lite.ErrBucketNotFound
	}
	bucketCopy := *r.buckets[id]
	return &bucketCopy, nil
}

func (r *Repository) ListBuckets(ctx context.Context) ([]*s3lite.Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*s3lite.Bucket, 0, len(r.buckets))
	for _, bucket := range r.buckets {
		bucketCopy := *bucket
		result = append(result, &bucketCopy)
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) DeleteBucketCascade(ctx context.Context, bucketID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.buckets[bucketID]
	if !exists {
		return s3lite.ErrBucketNotFound
	}

	for key, id := range r.objectsByKey {
		if key.bucketID == bucketID {
			delete(r.objects, id)
			delete(r.objectsByKey, key)
		}
	}
	delete(r.bucketsByName, bucket.Name)
	delete(r.buckets, bucketID)
	return nil
}

// Object operations

func (r *Repository) CreateObject(ctx context.Context, object *s3lite.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.buckets[object.BucketID]; !exists {
		return s3lite.ErrBucketNotFound
	}
	k := objectKey{object.BucketID, object.ObjectKey}
	if _, exists := r.objectsByKey[k]; exists {
		return s3lite.ErrObjectExists
	}

	objectCopy := *object
	r.objects[object.ID] = &objectCopy
	r.objectsByKey[k] = object.ID
	return nil
}

func (r *Repository) UpsertObject(ctx context.Context, object *s3lite.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.buckets[object.BucketID]; !exists {
		return s3lite.ErrBucketNotFound
	}
	k := objectKey{object.BucketID, object.ObjectKey}
	if id, exists := r.objectsByKey[k]; exists {
		existing := r.objects[id]
		object.ID = existing.ID
		object.CreatedAt = existing.CreatedAt
	}

	objectCopy := *object
	r.objects[object.ID] = &objectCopy
	r.objectsByKey[k] = object.ID
	return nil
}

func (r *Repository) GetObject(ctx context.Context, bucketID uuid.UUID, key string) (*s3lite.Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.objectsByKey[objectKey{bucketID, key}]
	if !exists {
		return nil, s3lite.ErrObjectNotFound
	}
	objectCopy := *r.objects[id]
	return &objectCopy, nil
}

func (r *Repository) ListObjects(ctx context.Context, bucketID uuid.UUID) ([]*s3lite.Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*s3lite.Object
	for _, object := range r.objects {
		if object.BucketID == bucketID {
			objectCopy := *object
			result = append(result, &objectCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) DeleteObject(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	object, exists := r.objects[id]
	if !exists {
		return s3lite.ErrObjectNotFound
	}
	delete(r.objectsByKey, objectKey{object.BucketID, object.ObjectKey})
	delete(r.objects, id)
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return nil
}
