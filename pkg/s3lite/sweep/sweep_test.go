package sweep_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/s3lite/pkg/s3lite"
	"github.com/tendant/s3lite/pkg/s3lite/repo/memory"
	memorystorage "github.com/tendant/s3lite/pkg/s3lite/storage/memory"
	"github.com/tendant/s3lite/pkg/s3lite/sweep"
)

type fixture struct {
	repo  *memory.Repository
	store *memorystorage.Backend
	svc   s3lite.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: memory.New(), store: memorystorage.New()}
	svc, err := s3lite.New(
		s3lite.WithRepository(f.repo),
		s3lite.WithBlobStore(f.store),
		s3lite.WithUploader(s3lite.NewUploader(s3lite.WithStagingDir(t.TempDir()))),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) putBlob(t *testing.T, locator, body string) {
	t.Helper()
	require.NoError(t, f.store.Put(t.Context(), locator, strings.NewReader(body), int64(len(body)), "text/plain"))
}

func (f *fixture) blobs(t *testing.T) []string {
	t.Helper()
	var out []string
	require.NoError(t, f.store.List(t.Context(), "", func(info s3lite.BlobInfo) error {
		out = append(out, info.Locator)
		return nil
	}))
	return out
}

func later() time.Time { return time.Now().Add(2 * time.Hour) }

func TestRunDeletesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.svc.CreateBucket(ctx, "docs")
	require.NoError(t, err)
	_, err = f.svc.PutObject(ctx, s3lite.PutObjectRequest{BucketName: "docs", ObjectKey: "kept.txt", Body: strings.NewReader("keep"), Overwrite: true})
	require.NoError(t, err)

	f.putBlob(t, "docs/orphan.txt", "x")
	f.putBlob(t, "gone/any.txt", "x")
	f.putBlob(t, "unparsable", "x")

	var hooked sweep.Report
	s := sweep.New(f.repo, f.store, sweep.WithClock(later), sweep.WithReportHook(func(r sweep.Report) { hooked = r }))
	report, err := s.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, sweep.Report{Scanned: 4, Deleted: 2, Failed: 0}, report)
	assert.Equal(t, report, hooked)
	assert.ElementsMatch(t, []string{"docs/kept.txt", "unparsable"}, f.blobs(t))
}

func TestRunRespectsGrace(t *testing.T) {
	f := newFixture(t)
	f.putBlob(t, "docs/fresh.txt", "x")

	report, err := sweep.New(f.repo, f.store).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Zero(t, report.Deleted)
	assert.Len(t, f.blobs(t), 1)
}

type failingRepo struct {
	*memory.Repository
}

func (failingRepo) GetBucketByName(ctx context.Context, name string) (*s3lite.Bucket, error) {
	return nil, errors.New("db down")
}

func (failingRepo) GetObject(ctx context.Context, bucketID uuid.UUID, key string) (*s3lite.Object, error) {
	return nil, errors.New("db down")
}

func TestRunKeepsBlobsWhenLookupFails(t *testing.T) {
	f := newFixture(t)
	f.putBlob(t, "docs/a.txt", "x")

	report, err := sweep.New(failingRepo{f.repo}, f.store, sweep.WithClock(later)).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, sweep.Report{Scanned: 1, Failed: 1}, report)
	assert.Len(t, f.blobs(t), 1)
}

// racingStore runs afterList once the listing has finished, before the
// sweeper starts deleting.
type racingStore struct {
	*memorystorage.Backend
	afterList func()
	failStat  bool
}

func (r *racingStore) List(ctx context.Context, prefix string, fn func(s3lite.BlobInfo) error) error {
	if err := r.Backend.List(ctx, prefix, fn); err != nil {
		return err
	}
	if r.afterList != nil {
		r.afterList()
	}
	return nil
}

func (r *racingStore) Stat(ctx context.Context, locator string) (*s3lite.BlobInfo, error) {
	if r.failStat {
		return nil, errors.New("backend down")
	}
	return r.Backend.Stat(ctx, locator)
}

func TestRunSparesBlobClaimedAfterListing(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.svc.CreateBucket(ctx, "docs")
	require.NoError(t, err)
	f.putBlob(t, "docs/k", "stale")

	store := &racingStore{Backend: f.store}
	store.afterList = func() {
		_, err := f.svc.PutObject(ctx, s3lite.PutObjectRequest{BucketName: "docs", ObjectKey: "k", Body: strings.NewReader("fresh"), Overwrite: true})
		require.NoError(t, err)
	}

	report, err := sweep.New(f.repo, store, sweep.WithClock(later)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, sweep.Report{Scanned: 1}, report)

	obj, rc, err := f.svc.GetObject(ctx, "docs", "k")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	assert.Equal(t, int64(5), obj.Size)
}

func TestRunSparesBucketCreatedAfterListing(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.putBlob(t, "late/k", "x")

	store := &racingStore{Backend: f.store}
	store.afterList = func() {
		_, err := f.svc.CreateBucket(ctx, "late")
		require.NoError(t, err)
		_, err = f.svc.PutObject(ctx, s3lite.PutObjectRequest{BucketName: "late", ObjectKey: "k", Body: strings.NewReader("y"), Overwrite: true})
		require.NoError(t, err)
	}

	report, err := sweep.New(f.repo, store, sweep.WithClock(later)).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Deleted)
	assert.Equal(t, []string{"late/k"}, f.blobs(t))
}

func TestRunSkipsCandidateDeletedAfterListing(t *testing.T) {
	f := newFixture(t)
	f.putBlob(t, "docs/gone", "x")

	store := &racingStore{Backend: f.store}
	store.afterList = func() {
		require.NoError(t, f.store.Delete(t.Context(), "docs/gone"))
	}

	report, err := sweep.New(f.repo, store, sweep.WithClock(later)).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, sweep.Report{Scanned: 1}, report)
}

func TestRunKeepsCandidateWhenRecheckFails(t *testing.T) {
	f := newFixture(t)
	f.putBlob(t, "docs/orphan", "x")

	store := &racingStore{Backend: f.store, failStat: true}
	report, err := sweep.New(f.repo, store, sweep.WithClock(later)).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, sweep.Report{Scanned: 1, Failed: 1}, report)
	assert.Equal(t, []string{"docs/orphan"}, f.blobs(t))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	s := sweep.New(f.repo, f.store)
	assert.Error(t, s.Start(t.Context(), "not a schedule"))
	s.Stop()
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t)
	s := sweep.New(f.repo, f.store)
	require.NoError(t, s.Start(t.Context(), "@every 1h"))
	s.Stop()
}
