package s3lite

import "context"

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// BucketCreated does nothing and returns nil
func (n *NoopEventSink) BucketCreated(ctx context.Context, bucket *Bucket) error {
	return nil
}

// BucketDeleted does nothing and returns nil
func (n *NoopEventSink) BucketDeleted(ctx context.Context, bucket *Bucket) error {
	return nil
}

// ObjectStored does nothing and returns nil
func (n *NoopEventSink) ObjectStored(ctx context.Context, bucket *Bucket, object *Object) error {
	return nil
}

// ObjectDeleted does nothing and returns nil
func (n *NoopEventSink) ObjectDeleted(ctx context.Context, bucket *Bucket, object *Object) error {
	return nil
}
