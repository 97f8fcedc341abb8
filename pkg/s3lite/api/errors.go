package api

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/s3lite/pkg/s3lite"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(kind s3lite.Kind) int {
	switch kind {
	case s3lite.KindInvalid:
		return http.StatusBadRequest
	case s3lite.KindUnauthorized:
		return http.StatusUnauthorized
	case s3lite.KindNotFound:
		return http.StatusNotFound
	case s3lite.KindConflict:
		return http.StatusConflict
	case s3lite.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case s3lite.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code and writes the JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := s3lite.KindOf(err)
	status := statusFor(kind)

	code := kind.String()
	message := err.Error()
	switch {
	case presigned.IsAuthError(err) || presigned.IsConfigError(err):
		code = presigned.ErrorCode(err)
	case kind == s3lite.KindInternal:
		message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.writeError(w, r, s3lite.E(s3lite.KindInvalid, op, err))
}
