package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	jobmemory "github.com/finbrand/logo-crawler/internal/jobstore/memory"
	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metrics"
	blobmemory "github.com/finbrand/logo-crawler/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeFetcher struct {
	source logo.Source
	data   []byte
	err    error
	panics bool
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ logo.Target) ([]byte, error) {
	f.calls++
	if f.panics {
		panic("fetcher exploded")
	}
	return f.data, f.err
}

func (f *fakeFetcher) Source() logo.Source { return f.source }

type fakeConverter struct {
	out map[string][]byte
}

func (c *fakeConverter) Convert(data []byte) map[string][]byte {
	if len(data) == 0 {
		return map[string][]byte{}
	}
	return c.out
}

type fakeRecorder struct {
	masterHash  string
	masterErr   error
	logoID      int64
	upsertErr   error
	artifactErr error

	upsertedHashes []string
	artifacts      []logo.Artifact
}

func (r *fakeRecorder) UpsertLogo(_ context.Context, hash string) (int64, error) {
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	r.upsertedHashes = append(r.upsertedHashes, hash)
	return r.logoID, nil
}

func (r *fakeRecorder) UpsertArtifact(_ context.Context, _ int64, artifact logo.Artifact) error {
	if r.artifactErr != nil {
		return r.artifactErr
	}
	r.artifacts = append(r.artifacts, artifact)
	return nil
}

func (r *fakeRecorder) MasterHash(_ context.Context, _ string) (string, error) {
	if r.masterErr != nil {
		return "", r.masterErr
	}
	return r.masterHash, nil
}

type fakePublisher struct {
	topics   []string
	payloads []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testRenditions = map[string][]byte{
	"png_240":  []byte("png240"),
	"png_300":  []byte("png300"),
	"webp_240": []byte("webp240"),
	"webp_300": []byte("webp300"),
}

func newTestOrchestrator(
	primary, fallback logo.Fetcher,
	rec *fakeRecorder,
	pub logo.Publisher,
) (*Orchestrator, *blobmemory.BlobStore, *jobmemory.Store) {
	blobs := blobmemory.NewBlobStore()
	jobs := jobmemory.NewStore()
	o := New(
		primary,
		fallback,
		&fakeConverter{out: testRenditions},
		blobs,
		rec,
		jobs,
		pub,
		fixedClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		Config{Budget: 30 * time.Second, Topic: "logo-events"},
		nil,
	)
	return o, blobs, jobs
}

func TestAcquireOne_PrimaryWins(t *testing.T) {
	primary := &fakeFetcher{source: logo.SourceWebsite, data: []byte("raw")}
	fallback := &fakeFetcher{source: logo.SourceLogoDev, data: []byte("paid")}
	rec := &fakeRecorder{masterErr: logo.ErrNotFound, logoID: 7}
	pub := &fakePublisher{}
	o, blobs, _ := newTestOrchestrator(primary, fallback, rec, pub)

	res := o.AcquireOne(context.Background(), logo.Target{InfomaxCode: "ACME", Ticker: "ACME"})

	require.True(t, res.Succeeded)
	require.Equal(t, logo.SourceWebsite, res.Source)
	require.Equal(t, logo.DeriveHash("website", "ACME"), res.LogoHash)
	require.Equal(t, 0, fallback.calls, "fallback must not run when the primary delivers")
	require.Len(t, res.Artifacts, 4)
	require.Equal(t, 4, blobs.Len())

	_, contentType, ok := blobs.GetObject(logo.ObjectKey(res.LogoHash, 240, "png"))
	require.True(t, ok)
	require.Equal(t, "image/png", contentType)

	require.Equal(t, []string{"logo-events"}, pub.topics)
}

func TestAcquireOne_FallbackUsed(t *testing.T) {
	primary := &fakeFetcher{source: logo.SourceWebsite}
	fallback := &fakeFetcher{source: logo.SourceLogoDev, data: []byte("paid")}
	rec := &fakeRecorder{masterErr: logo.ErrNotFound, logoID: 7}
	o, _, _ := newTestOrchestrator(primary, fallback, rec, &fakePublisher{})

	res := o.AcquireOne(context.Background(), logo.Target{InfomaxCode: "ACME", APIDomain: "acme.com"})

	require.True(t, res.Succeeded)
	require.Equal(t, logo.SourceLogoDev, res.Source)
	require.Equal(t, logo.DeriveHash("logo_dev", "ACME"), res.LogoHash)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, fallback.calls)
}

func TestAcquireOne_MasterHashPreferred(t *testing.T) {
	primary := &fakeFetcher{source: logo.SourceWebsite, data: []byte("raw")}
	rec := &fakeRecorder{masterHash: "canonicalhash", logoID: 7}
	o, _, _ := newTestOrchestrator(primary, nil, rec, &fakePublisher{})

	res := o.AcquireOne(context.Background(), logo.Target{InfomaxCode: "ACME"})

	require.True(t, res.Succeeded)
	require.Equal(t, "canonicalhash", res.LogoHash)
	require.Equal(t, []string{"canonicalhash"}, rec.upsertedHashes)
}

func TestAcquireOne_AllSourcesEmpty(t *testing.T) {
	primary := &fakeFetcher{source: logo.SourceWebsite}
	fallback := &fakeFetcher{source: logo.SourceLogoDev}
	rec := &fakeRecorder{}
	o, blobs, _ := newTestOrchestrator(primary, fallback, rec, &fakePublisher{})

	res := o.AcquireOne(context.Background(), logo.Target{InfomaxCode: "GHOST"})

	require.False(t, res.Succeeded)
	require.ErrorIs(t, res.Err, logo.ErrAllSourcesFailed)
	require.Equal(t, 0, blobs.Len())
	require.Empty(t, rec.upsertedHashes)
}

func TestAcquireOne_PrimaryErrorFallsThrough(t *testing.T) {
	primary := &fakeFetcher{source: logo.SourceWebsite, err: errors.New("chrome crashed")}
	fallback := &fakeFetcher{source: logo.SourceLogoDev, data: []byte("paid")}
	rec := &fakeRecorder{masterErr: logo.ErrNotFound, logoID: 1}
	o, _, _ := newTestOrchestrator(primary, fallback, rec, &fakePublisher{})

	res := o.AcquireOne(context.Background(), logo.Target{InfomaxCode: "ACME"})

	require.True(t, res.Succeeded)
	require.Equal(t, logo.SourceLogoDev, res.Source)
}

func TestAcquireOne_PanicContained(t *testing.T) {
	primary := &fakeFetcher{source: logo.SourceWebsite, panics: true}
	rec := &fakeRecorder{}
	o, _, _ := newTestOrchestrator(primary, nil, rec, &fakePublisher{})

	res := o.AcquireOne(context.Background(), logo.Target{InfomaxCode: "BOOM"})

	require.False(t, res.Succeeded)
	require.ErrorContains(t, res.Err, "panicked")
}

func TestAcquireOne_RecorderFailure(t *testing.T) {
	primary := &fakeFetcher{source: logo.SourceWebsite, data: []byte("raw")}
	rec := &fakeRecorder{masterErr: logo.ErrNotFound, upsertErr: errors.New("api down")}
	o, _, _ := newTestOrchestrator(primary, nil, rec, &fakePublisher{})

	res := o.AcquireOne(context.Background(), logo.Target{InfomaxCode: "ACME"})

	require.False(t, res.Succeeded)
	require.ErrorContains(t, res.Err, "upsert logo")
}

func TestPersist_PartialFailureStillSucceeds(t *testing.T) {
	rec := &fakeRecorder{logoID: 3}
	o, blobs, _ := newTestOrchestrator(nil, nil, rec, nil)

	artifacts, err := o.Persist(context.Background(), "hash1", logo.SourceManual, map[string][]byte{
		"png_240":  []byte("ok"),
		"bogus":    []byte("unparseable key"),
		"original": []byte("<svg/>"),
	})
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	require.Equal(t, 2, blobs.Len())

	_, contentType, ok := blobs.GetObject(logo.OriginalObjectKey("hash1", "svg"))
	require.True(t, ok)
	require.Equal(t, "image/svg+xml", contentType)
}

func TestPersist_NothingStored(t *testing.T) {
	rec := &fakeRecorder{logoID: 3, artifactErr: errors.New("api down")}
	o, _, _ := newTestOrchestrator(nil, nil, rec, nil)

	_, err := o.Persist(context.Background(), "hash1", logo.SourceManual, map[string][]byte{
		"png_240": []byte("ok"),
	})
	require.ErrorIs(t, err, logo.ErrNoArtifacts)
}

func TestRunBatch_MixedOutcomes(t *testing.T) {
	rec := &fakeRecorder{masterErr: logo.ErrNotFound, logoID: 1}
	primary := &selectiveFetcher{failCode: "BAD"}
	pub := &fakePublisher{}
	o, _, jobs := newTestOrchestrator(primary, nil, rec, pub)

	targets := []logo.Target{
		{InfomaxCode: "AAA", Ticker: "AAA"},
		{InfomaxCode: "BAD", Ticker: "BAD"},
		{InfomaxCode: "CCC", Ticker: "CCC"},
	}
	require.NoError(t, o.RunBatch(context.Background(), "job-1", targets))

	job, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, logo.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.Total)
	require.Equal(t, 3, job.Completed)
	require.Equal(t, 2, job.Succeeded)
	require.Equal(t, 1, job.Failed)
	require.Empty(t, job.Current)
	require.NotNil(t, job.Finished)
	require.Len(t, job.Items, 3)
	require.False(t, job.Items[1].Succeeded)
	require.Len(t, job.Errors, 1)

	// Two per-item events plus the batch summary.
	require.Len(t, pub.payloads, 3)
	summary, ok := pub.payloads[2].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "batch_finished", summary["event"])
	require.Equal(t, "job-1", summary["job_id"])
	require.Equal(t, 2, summary["success"])
}

func TestRunBatch_CanceledContext(t *testing.T) {
	rec := &fakeRecorder{masterErr: logo.ErrNotFound, logoID: 1}
	primary := &fakeFetcher{source: logo.SourceWebsite, data: []byte("raw")}
	o, _, jobs := newTestOrchestrator(primary, nil, rec, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, o.RunBatch(ctx, "job-2", []logo.Target{{InfomaxCode: "AAA"}}))

	job, err := jobs.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, logo.JobStatusFailed, job.Status)
	require.Equal(t, 0, job.Completed)
}

func TestRunBatch_KeepsSeededStart(t *testing.T) {
	rec := &fakeRecorder{masterErr: logo.ErrNotFound, logoID: 1}
	primary := &fakeFetcher{source: logo.SourceWebsite, data: []byte("raw")}
	o, _, jobs := newTestOrchestrator(primary, nil, rec, &fakePublisher{})

	seeded := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, jobs.CreateJob(context.Background(), logo.Job{
		ID:      "job-3",
		Status:  logo.JobStatusRunning,
		Total:   1,
		Errors:  []string{},
		Started: seeded,
	}))

	targets := []logo.Target{{InfomaxCode: "AAA", Ticker: "AAA"}}
	require.NoError(t, o.RunBatch(context.Background(), "job-3", targets))

	job, err := jobs.GetJob(context.Background(), "job-3")
	require.NoError(t, err)
	require.Equal(t, seeded, job.Started, "submit-time started_at survives worker pickup")
	require.Equal(t, logo.JobStatusCompleted, job.Status)
}

// selectiveFetcher succeeds for every code except failCode.
type selectiveFetcher struct {
	failCode string
}

func (f *selectiveFetcher) Fetch(_ context.Context, target logo.Target) ([]byte, error) {
	if target.InfomaxCode == f.failCode {
		return nil, fmt.Errorf("no logo for %s", target.InfomaxCode)
	}
	return []byte("raw"), nil
}

func (f *selectiveFetcher) Source() logo.Source { return logo.SourceWebsite }
