package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/tendant/s3lite/pkg/s3lite"
	"github.com/tendant/s3lite/pkg/s3lite/metrics"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

// Server exposes an s3lite.Service over HTTP
type Server struct {
	service     s3lite.Service
	authorizer  *presigned.Authorizer
	logger      *slog.Logger
	metrics     *metrics.Metrics
	corsOrigins []string
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics enables the metrics middleware and the /metrics endpoint
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCORSOrigins enables CORS for the given origins
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// NewServer creates a Server. Every bucket and object route goes through authorizer.
func NewServer(service s3lite.Service, authorizer *presigned.Authorizer, opts ...Option) *Server {
	s := &Server{
		service:    service,
		authorizer: authorizer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the HTTP router
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(Recoverer(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{"GET", "HEAD", "PUT", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", presigned.APIKeyHeader, "X-Request-ID"},
			ExposedHeaders:   []string{"ETag", presigned.ChecksumHeader, "Content-Length", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authorizer.Middleware)

		r.Post("/buckets", s.CreateBucket)
		r.Get("/buckets", s.ListBuckets)
		r.Delete("/buckets/{bucket}", s.DeleteBucket)

		r.Get("/buckets/{bucket}/objects", s.ListObjects)
		r.Post("/buckets/{bucket}/objects/*", s.PresignObject)
		r.Put("/buckets/{bucket}/objects/*", s.PutObject)
		r.Head("/buckets/{bucket}/objects/*", s.HeadObject)
		r.Get("/buckets/{bucket}/objects/*", s.GetObject)
		r.Delete("/buckets/{bucket}/objects/*", s.DeleteObject)
	})

	return r
}
