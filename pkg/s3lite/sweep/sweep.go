// Package sweep removes blobs that no metadata row points at. Such orphans
// appear when a metadata commit fails after the blob was written.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tendant/s3lite/pkg/s3lite"
)

// DefaultGrace keeps the sweeper away from blobs whose upload may still be committing.
const DefaultGrace = time.Hour

// Report summarizes one sweep
type Report struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Sweeper finds and deletes orphaned blobs
type Sweeper struct {
	repo     s3lite.Repository
	store    s3lite.BlobStore
	grace    time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onReport func(Report)

	cron *cron.Cron
}

type Option func(*Sweeper)

func WithGrace(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.grace = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithReportHook is called after every completed run
func WithReportHook(fn func(Report)) Option {
	return func(s *Sweeper) {
		s.onReport = fn
	}
}

// New creates a Sweeper
func New(repo s3lite.Repository, store s3lite.BlobStore, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:   repo,
		store:  store,
		grace:  DefaultGrace,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sweep. Candidates are collected first and deleted after
// the listing finishes, so backends never see deletes mid-iteration. Each
// candidate is checked again right before its delete, since an upload may
// have rewritten the locator and committed metadata in the meantime.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var (
		report     Report
		candidates []string
		cutoff     = s.now().Add(-s.grace)
		buckets    = map[string]*s3lite.Bucket{}
	)

	err := s.store.List(ctx, "", func(info s3lite.BlobInfo) error {
		report.Scanned++
		if info.UpdatedAt.After(cutoff) {
			return nil
		}

		orphan, err := s.isOrphan(ctx, info.Locator, buckets)
		if err != nil {
			report.Failed++
			s.logger.Warn("sweep lookup failed", "locator", info.Locator, "err", err)
			return nil
		}
		if orphan {
			candidates = append(candidates, info.Locator)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("list blobs: %w", err)
	}

	for _, locator := range candidates {
		orphan, err := s.stillOrphan(ctx, locator, cutoff)
		if err != nil {
			report.Failed++
			s.logger.Warn("sweep recheck failed", "locator", locator, "err", err)
			continue
		}
		if !orphan {
			s.logger.Debug("sweep candidate claimed before delete", "locator", locator)
			continue
		}
		if err := s.store.Delete(ctx, locator); err != nil && !errors.Is(err, s3lite.ErrBlobNotFound) {
			report.Failed++
			s.logger.Warn("sweep delete failed", "locator", locator, "err", err)
			continue
		}
		report.Deleted++
		s.logger.Info("orphan blob deleted", "locator", locator)
	}

	if s.onReport != nil {
		s.onReport(report)
	}
	return report, nil
}

// isOrphan reports whether no object row references locator. Locators that do
// not parse were not written by this service and are left alone.
func (s *Sweeper) isOrphan(ctx context.Context, locator string, buckets map[string]*s3lite.Bucket) (bool, error) {
	bucketName, key, ok := s3lite.ParseLocator(locator)
	if !ok {
		return false, nil
	}

	bucket, seen := buckets[bucketName]
	if !seen {
		b, err := s.repo.GetBucketByName(ctx, bucketName)
		if err != nil && !errors.Is(err, s3lite.ErrBucketNotFound) {
			return false, err
		}
		bucket = b
		buckets[bucketName] = b
	}
	if bucket == nil {
		return true, nil
	}

	_, err := s.repo.GetObject(ctx, bucket.ID, key)
	if errors.Is(err, s3lite.ErrObjectNotFound) {
		return true, nil
	}
	return false, err
}

// stillOrphan repeats the age and metadata checks for one candidate without
// the per-run bucket cache. A blob that vanished is no longer a candidate.
func (s *Sweeper) stillOrphan(ctx context.Context, locator string, cutoff time.Time) (bool, error) {
	info, err := s.store.Stat(ctx, locator)
	if errors.Is(err, s3lite.ErrBlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.UpdatedAt.After(cutoff) {
		return false, nil
	}
	return s.isOrphan(ctx, locator, map[string]*s3lite.Bucket{})
}

// Start schedules Run on a standard five-field cron expression.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := c.AddFunc(schedule, func() {
		report, err := s.Run(ctx)
		if err != nil {
			s.logger.Error("sweep failed", "err", err)
			return
		}
		s.logger.Info("sweep finished", "scanned", report.Scanned, "deleted", report.Deleted, "failed", report.Failed)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.cron = c
	c.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to return.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
