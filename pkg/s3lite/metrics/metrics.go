package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/s3lite/pkg/s3lite"
)

const namespace = "s3lite"

// Metrics provides a self-contained Prometheus registry with HTTP metrics and
// object/bucket counters. It implements s3lite.EventSink.
type Metrics struct {
	reg      *prometheus.Registry
	inflight prometheus.Gauge
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	buckets      *prometheus.CounterVec
	objects      *prometheus.CounterVec
	bytesStored  prometheus.Counter
	sweepRuns    prometheus.Counter
	sweepBlobs   *prometheus.CounterVec
	sweepLastRun prometheus.Gauge
}

// New creates a Metrics instance with a fresh registry and registers collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of inflight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed, partitioned by status code and method.",
		}, []string{"code", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of latencies for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
		buckets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bucket_events_total",
			Help:      "Bucket lifecycle events, partitioned by event.",
		}, []string{"event"}),
		objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_events_total",
			Help:      "Object lifecycle events, partitioned by event.",
		}, []string{"event"}),
		bytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_bytes_total",
			Help:      "Total bytes of object content written.",
		}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Number of orphan sweeps executed.",
		}),
		sweepBlobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "blobs_total",
			Help:      "Blobs seen by the orphan sweeper, partitioned by outcome.",
		}, []string{"outcome"}),
		sweepLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed sweep.",
		}),
	}

	m.reg.MustRegister(
		m.inflight, m.requests, m.latency,
		m.buckets, m.objects, m.bytesStored,
		m.sweepRuns, m.sweepBlobs, m.sweepLastRun,
	)
	return m
}

// Handler returns an http.Handler that serves Prometheus metrics using the internal registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry for advanced usage.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// statusRecorder captures the HTTP status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an http.Handler to collect basic HTTP metrics:
// - inflight gauge
// - requests_total counter (labels: method, code)
// - request_duration_seconds histogram (labels: method, code)
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		m.requests.WithLabelValues(code, r.Method).Inc()
		m.latency.WithLabelValues(code, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveSweep records the outcome of one sweep run
func (m *Metrics) ObserveSweep(scanned, deleted, failed int) {
	m.sweepRuns.Inc()
	m.sweepBlobs.WithLabelValues("scanned").Add(float64(scanned))
	m.sweepBlobs.WithLabelValues("deleted").Add(float64(deleted))
	m.sweepBlobs.WithLabelValues("failed").Add(float64(failed))
	m.sweepLastRun.SetToCurrentTime()
}

// EventSink implementation

func (m *Metrics) BucketCreated(ctx context.Context, bucket *s3lite.Bucket) error {
	m.buckets.WithLabelValues("created").Inc()
	return nil
}

func (m *Metrics) BucketDeleted(ctx context.Context, bucket *s3lite.Bucket) error {
	m.buckets.WithLabelValues("deleted").Inc()
	return nil
}

func (m *Metrics) ObjectStored(ctx context.Context, bucket *s3lite.Bucket, object *s3lite.Object) error {
	m.objects.WithLabelValues("stored").Inc()
	m.bytesStored.Add(float64(object.Size))
	return nil
}

func (m *Metrics) ObjectDeleted(ctx context.Context, bucket *s3lite.Bucket, object *s3lite.Object) error {
	m.objects.WithLabelValues("deleted").Inc()
	return nil
}

var _ s3lite.EventSink = (*Metrics)(nil)
