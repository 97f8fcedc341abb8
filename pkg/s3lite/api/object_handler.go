package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/s3lite/pkg/s3lite"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

const (
	presignSuffix = "/presign"
	fileField     = "file"
	copyChunkSize = 1 << 20
)

// PresignRequest is the body of POST /buckets/{bucket}/objects/{key}/presign
type PresignRequest struct {
	Method      string `json:"method"`
	ExpiresIn   int    `json:"expires_in"`
	ContentType string `json:"content_type,omitempty"`
}

// pathParam returns a route parameter in decoded form. chi matches against
// the raw path when the request has one, so params may still be escaped.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func objectKey(r *http.Request) string {
	return pathParam(r, "*")
}

// PresignObject issues a presigned URL. POST on an object path is only
// meaningful with the /presign suffix.
func (s *Server) PresignObject(w http.ResponseWriter, r *http.Request) {
	key, ok := strings.CutSuffix(objectKey(r), presignSuffix)
	if !ok {
		render.Status(r, http.StatusMethodNotAllowed)
		render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: "method_not_allowed", Message: "POST is only supported on .../presign"}})
		return
	}

	var req PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "presign object", fmt.Errorf("decode request: %w", err))
		return
	}

	signed, err := s.service.PresignObject(r.Context(), s3lite.PresignObjectRequest{
		BucketName:  pathParam(r, "bucket"),
		ObjectKey:   key,
		Method:      req.Method,
		ExpiresIn:   time.Duration(req.ExpiresIn) * time.Second,
		ContentType: req.ContentType,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	render.JSON(w, r, signed)
}

// PutObject stores the request body, or the multipart field "file", as an object.
func (s *Server) PutObject(w http.ResponseWriter, r *http.Request) {
	overwrite := true
	if v := r.URL.Query().Get("overwrite"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.badRequest(w, r, "put object", fmt.Errorf("invalid overwrite value %q", v))
			return
		}
		overwrite = b
	}

	body, contentType, err := uploadBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	obj, err := s.service.PutObject(r.Context(), s3lite.PutObjectRequest{
		BucketName:  pathParam(r, "bucket"),
		ObjectKey:   objectKey(r),
		ContentType: contentType,
		Body:        body,
		Overwrite:   overwrite,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("object stored", "bucket", pathParam(r, "bucket"), "key", obj.ObjectKey, "size", obj.Size, "checksum", obj.Checksum)
	render.JSON(w, r, obj)
}

// uploadBody picks the upload stream. For multipart requests it is the
// "file" part and any content-type constraint from a presigned URL is
// checked against that part.
func uploadBody(r *http.Request) (io.Reader, string, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "multipart/form-data" {
		return r.Body, contentType, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", s3lite.E(s3lite.KindInvalid, "put object", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", s3lite.E(s3lite.KindInvalid, "put object", fmt.Errorf("multipart field %q is required", fileField))
		}
		if err != nil {
			return nil, "", s3lite.E(s3lite.KindInvalid, "put object", err)
		}
		if part.FormName() != fileField {
			part.Close()
			continue
		}

		partType := part.Header.Get("Content-Type")
		if err := presigned.CheckContentType(r.Context(), partType); err != nil {
			return nil, "", s3lite.E(s3lite.KindUnauthorized, "put object", err)
		}
		return part, partType, nil
	}
}

func setObjectHeaders(w http.ResponseWriter, obj *s3lite.Object) {
	h := w.Header()
	h.Set("Content-Type", obj.ContentType)
	h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	h.Set("ETag", obj.Checksum)
	h.Set(presigned.ChecksumHeader, obj.Checksum)
	h.Set("Last-Modified", obj.UpdatedAt.UTC().Format(http.TimeFormat))
}

// HeadObject returns object headers without a body
func (s *Server) HeadObject(w http.ResponseWriter, r *http.Request) {
	obj, err := s.service.HeadObject(r.Context(), pathParam(r, "bucket"), objectKey(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
}

// GetObject streams the object body
func (s *Server) GetObject(w http.ResponseWriter, r *http.Request) {
	obj, rc, err := s.service.GetObject(r.Context(), pathParam(r, "bucket"), objectKey(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	setObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)

	n, err := io.CopyBuffer(w, rc, make([]byte, copyChunkSize))
	if err != nil {
		// Headers are gone; all we can do is log and cut the stream short.
		s.logger.Error("object stream interrupted", "key", obj.ObjectKey, "written", n, "size", obj.Size, "err", err)
	}
}

// DeleteObject removes an object
func (s *Server) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := pathParam(r, "bucket"), objectKey(r)
	if err := s.service.DeleteObject(r.Context(), bucket, key); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("object deleted", "bucket", bucket, "key", key)
	w.WriteHeader(http.StatusNoContent)
}
