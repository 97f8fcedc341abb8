// Package s3lite provides a small S3-style object gateway: logical buckets,
// keyed objects with SHA-256 integrity tags, and HMAC presigned URLs.
//
// It exposes a single Service interface that orchestrates bucket and object
// operations on top of a metadata Repository and a BlobStore. Implementations
// of repositories (memory, Postgres) and blob stores (memory, filesystem, S3,
// MinIO, GCS) are provided under subpackages.
//
// # Write Ordering
//
// Object bytes are always written to the BlobStore before the metadata row is
// created or updated, and blobs are deleted before their metadata row. A
// failed write can leave a blob without metadata; the sweep package removes
// those once they are older than its grace period.
package s3lite
