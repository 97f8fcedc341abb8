package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/s3lite/pkg/s3lite"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements s3lite.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch pgErr.ConstraintName {
			case "buckets_name_key":
				return s3lite.ErrBucketExists
			case "objects_bucket_key_key":
				return s3lite.ErrObjectExists
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return s3lite.ErrBucketNotFound
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Bucket operations

func (r *Repository) CreateBucket(ctx context.Context, bucket *s3lite.Bucket) error {
	query := `INSERT INTO buckets (id, name, created_at) VALUES ($1, $2, $3)`

	_, err := r.db.Exec(ctx, query, bucket.ID, bucket.Name, bucket.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create bucket", err)
	}
	return nil
}

func (r *Repository) GetBucketByName(ctx context.Context, name string) (*s3lite.Bucket, error) {
	query := `SELECT id, name, created_at FROM buckets WHERE name = $1`

	var bucket s3lite.Bucket
	err := r.db.QueryRow(ctx, query, name).Scan(&bucket.ID, &bucket.Name, &bucket.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s3lite.ErrBucketNotFound
		}
		return nil, r.handlePostgresError("get bucket", err)
	}
	return &bucket, nil
}

func (r *Repository) ListBuckets(ctx context.Context) ([]*s3lite.Bucket, error) {
	query := `SELECT id, name, created_at FROM buckets ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list buckets", err)
	}
	defer rows.Close()

	var result []*s3lite.Bucket
	for rows.Next() {
		var bucket s3lite.Bucket
		if err := rows.Scan(&bucket.ID, &bucket.Name, &bucket.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &bucket)
	}
	return result, rows.Err()
}

// DeleteBucketCascade removes object rows and the bucket row in one transaction
func (r *Repository) DeleteBucketCascade(ctx context.Context, bucketID uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM objects WHERE bucket_id = $1`, bucketID); err != nil {
			return r.handlePostgresError("delete bucket objects", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM buckets WHERE id = $1`, bucketID)
		if err != nil {
			return r.handlePostgresError("delete bucket", err)
		}
		if tag.RowsAffected() == 0 {
			return s3lite.ErrBucketNotFound
		}
		return nil
	})
}

// Object operations

const objectColumns = `id, bucket_id, object_key, size, checksum_sha256, content_type, created_at, updated_at`

func scanObject(row pgx.Row) (*s3lite.Object, error) {
	var obj s3lite.Object
	err := row.Scan(&obj.ID, &obj.BucketID, &obj.ObjectKey, &obj.Size,
		&obj.Checksum, &obj.ContentType, &obj.CreatedAt, &obj.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (r *Repository) CreateObject(ctx context.Context, object *s3lite.Object) error {
	query := `INSERT INTO objects (` + objectColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		object.ID, object.BucketID, object.ObjectKey, object.Size,
		object.Checksum, object.ContentType, object.CreatedAt, object.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create object", err)
	}
	return nil
}

// UpsertObject relies on the (bucket_id, object_key) constraint so that
// concurrent writers of one key never produce two rows.
func (r *Repository) UpsertObject(ctx context.Context, object *s3lite.Object) error {
	query := `
		INSERT INTO objects (` + objectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT objects_bucket_key_key DO UPDATE SET
			size = EXCLUDED.size,
			checksum_sha256 = EXCLUDED.checksum_sha256,
			content_type = EXCLUDED.content_type,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		object.ID, object.BucketID, object.ObjectKey, object.Size,
		object.Checksum, object.ContentType, object.CreatedAt, object.UpdatedAt,
	).Scan(&object.ID, &object.CreatedAt)
	if err != nil {
		return r.handlePostgresError("upsert object", err)
	}
	return nil
}

func (r *Repository) GetObject(ctx context.Context, bucketID uuid.UUID, objectKey string) (*s3lite.Object, error) {
	query := `SELECT ` + objectColumns + ` FROM objects WHERE bucket_id = $1 AND object_key = $2`

	obj, err := scanObject(r.db.QueryRow(ctx, query, bucketID, objectKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s3lite.ErrObjectNotFound
		}
		return nil, r.handlePostgresError("get object", err)
	}
	return obj, nil
}

func (r *Repository) ListObjects(ctx context.Context, bucketID uuid.UUID) ([]*s3lite.Object, error) {
	query := `SELECT ` + objectColumns + ` FROM objects WHERE bucket_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, bucketID)
	if err != nil {
		return nil, r.handlePostgresError("list objects", err)
	}
	defer rows.Close()

	var result []*s3lite.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, obj)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteObject(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM objects WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete object", err)
	}
	if tag.RowsAffected() == 0 {
		return s3lite.ErrObjectNotFound
	}
	return nil
}

// Ping checks connectivity with a trivial query
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
