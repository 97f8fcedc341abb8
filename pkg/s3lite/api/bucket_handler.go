package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/s3lite/pkg/s3lite"
)

// CreateBucketRequest is the body of POST /buckets
type CreateBucketRequest struct {
	Name string `json:"name"`
}

// CreateBucket creates a bucket and returns it with 201
func (s *Server) CreateBucket(w http.ResponseWriter, r *http.Request) {
	var req CreateBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "create bucket", fmt.Errorf("decode request: %w", err))
		return
	}

	bucket, err := s.service.CreateBucket(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("bucket created", "bucket", bucket.Name, "id", bucket.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, bucket)
}

// ListBuckets returns every bucket, newest first
func (s *Server) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.service.ListBuckets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if buckets == nil {
		buckets = []*s3lite.Bucket{}
	}
	render.JSON(w, r, buckets)
}

// DeleteBucket removes a bucket together with its objects and blobs
func (s *Server) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "bucket")
	if err := s.service.DeleteBucket(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("bucket deleted", "bucket", name)
	w.WriteHeader(http.StatusNoContent)
}

// ListObjects returns the objects in a bucket, newest first
func (s *Server) ListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := s.service.ListObjects(r.Context(), pathParam(r, "bucket"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if objects == nil {
		objects = []*s3lite.Object{}
	}
	render.JSON(w, r, objects)
}
