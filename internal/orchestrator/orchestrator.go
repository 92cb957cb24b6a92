// Package orchestrator runs the acquisition pipeline for single tickers and
// batches: fetch from the primary source, fall back to the paid API, derive
// renditions, store blobs, record metadata and publish completion events.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metrics"
)

// Config controls Orchestrator behavior.
type Config struct {
	// Budget caps the wall time spent on one ticker end to end.
	Budget time.Duration
	// Topic is the completion event topic; empty disables publishing.
	Topic string
}

// Orchestrator coordinates the per-ticker acquisition flow.
type Orchestrator struct {
	primary   logo.Fetcher
	fallback  logo.Fetcher
	converter logo.Converter
	blobs     logo.BlobStore
	recorder  logo.Recorder
	jobs      logo.JobStore
	publisher logo.Publisher
	clock     logo.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. The fallback fetcher and publisher may be
// nil; everything else is required.
func New(
	primary logo.Fetcher,
	fallback logo.Fetcher,
	converter logo.Converter,
	blobs logo.BlobStore,
	recorder logo.Recorder,
	jobs logo.JobStore,
	publisher logo.Publisher,
	clock logo.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 30 * time.Second
	}
	return &Orchestrator{
		primary:   primary,
		fallback:  fallback,
		converter: converter,
		blobs:     blobs,
		recorder:  recorder,
		jobs:      jobs,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// AcquireOne runs the full pipeline for a single ticker under the configured
// budget. A panic anywhere in the pipeline is contained and reported as a
// failed result so one bad ticker cannot take down a batch.
func (o *Orchestrator) AcquireOne(ctx context.Context, target logo.Target) (result logo.Result) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("acquisition panicked",
				zap.String("infomax_code", target.InfomaxCode),
				zap.Any("panic", r),
			)
			result = logo.Result{
				Target:    target,
				Succeeded: false,
				Err:       fmt.Errorf("acquisition panicked: %v", r),
			}
		}
		outcome := "failed"
		if result.Succeeded {
			outcome = "success"
		}
		metrics.ObserveAcquisition(string(result.Source), outcome)
	}()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Budget)
	defer cancel()

	return o.acquire(ctx, target)
}

func (o *Orchestrator) acquire(ctx context.Context, target logo.Target) logo.Result {
	raw, err := o.fetch(ctx, target)
	if err != nil {
		return logo.Result{Target: target, Err: err}
	}

	hash := o.resolveHash(ctx, target, raw.Source)
	renditions := o.converter.Convert(raw.Data)
	if len(renditions) == 0 {
		return logo.Result{Target: target, Source: raw.Source, Err: logo.ErrNoArtifacts}
	}

	artifacts, err := o.Persist(ctx, hash, raw.Source, renditions)
	if err != nil {
		return logo.Result{Target: target, Source: raw.Source, LogoHash: hash, Err: err}
	}

	o.publishCompletion(ctx, target, hash, raw.Source, len(artifacts))

	return logo.Result{
		Target:    target,
		Succeeded: true,
		Source:    raw.Source,
		LogoHash:  hash,
		Artifacts: artifacts,
	}
}

// fetch tries the primary source and, only when it yields nothing, the paid
// fallback. Fetcher errors are demoted to "source had nothing" because the
// next source may still deliver.
func (o *Orchestrator) fetch(ctx context.Context, target logo.Target) (logo.RawLogo, error) {
	for _, fetcher := range []logo.Fetcher{o.primary, o.fallback} {
		if fetcher == nil {
			continue
		}
		start := time.Now()
		data, err := fetcher.Fetch(ctx, target)
		metrics.ObserveFetchDuration(string(fetcher.Source()), time.Since(start))
		if err != nil {
			o.logger.Warn("source fetch failed",
				zap.String("infomax_code", target.InfomaxCode),
				zap.String("source", string(fetcher.Source())),
				zap.Error(err),
			)
			continue
		}
		if len(data) > 0 {
			return logo.RawLogo{Data: data, Source: fetcher.Source()}, nil
		}
	}
	return logo.RawLogo{}, logo.ErrAllSourcesFailed
}

// resolveHash prefers the canonical hash from logo_master so re-acquired
// logos land on their existing identity; unknown tickers get a derived hash.
func (o *Orchestrator) resolveHash(ctx context.Context, target logo.Target, source logo.Source) string {
	hash, err := o.recorder.MasterHash(ctx, target.InfomaxCode)
	if err == nil && hash != "" {
		return hash
	}
	return logo.DeriveHash(source, target.InfomaxCode)
}

// Persist upserts the logos row and writes every rendition as blob plus
// metadata row. Partial failures are tolerated as long as at least one
// artifact lands; the manual upload path reuses this.
func (o *Orchestrator) Persist(
	ctx context.Context,
	hash string,
	source logo.Source,
	renditions map[string][]byte,
) ([]logo.Artifact, error) {
	logoID, err := o.recorder.UpsertLogo(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("upsert logo: %w", err)
	}

	keys := make([]string, 0, len(renditions))
	for key := range renditions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var stored []logo.Artifact
	var lastErr error
	for _, key := range keys {
		artifact, err := o.persistRendition(ctx, logoID, hash, source, key, renditions[key])
		if err != nil {
			lastErr = err
			o.logger.Warn("persist rendition failed",
				zap.String("logo_hash", hash),
				zap.String("rendition", key),
				zap.Error(err),
			)
			continue
		}
		stored = append(stored, artifact)
		metrics.ObserveArtifact(artifact.Format)
	}
	if len(stored) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", logo.ErrNoArtifacts, lastErr)
		}
		return nil, logo.ErrNoArtifacts
	}
	return stored, nil
}

func (o *Orchestrator) persistRendition(
	ctx context.Context,
	logoID int64,
	hash string,
	source logo.Source,
	key string,
	data []byte,
) (logo.Artifact, error) {
	format, dimension, isOriginal, err := logo.ParseRenditionKey(key)
	if err != nil {
		return logo.Artifact{}, err
	}

	var objectKey string
	artifact := logo.Artifact{
		Format:     format,
		SizeBytes:  len(data),
		IsOriginal: isOriginal,
		Source:     source,
	}
	if isOriginal {
		objectKey = logo.OriginalObjectKey(hash, format)
	} else {
		objectKey = logo.ObjectKey(hash, dimension, format)
		dim := dimension
		artifact.Width = &dim
		height := dimension
		artifact.Height = &height
	}
	artifact.ObjectKey = objectKey

	if err := o.blobs.PutObject(ctx, objectKey, logo.ContentType(format), data); err != nil {
		return logo.Artifact{}, fmt.Errorf("put %s: %w", objectKey, err)
	}
	if err := o.recorder.UpsertArtifact(ctx, logoID, artifact); err != nil {
		return logo.Artifact{}, fmt.Errorf("record %s: %w", objectKey, err)
	}
	return artifact, nil
}

func (o *Orchestrator) publishCompletion(
	ctx context.Context,
	target logo.Target,
	hash string,
	source logo.Source,
	artifactCount int,
) {
	if o.cfg.Topic == "" || o.publisher == nil {
		return
	}
	payload := map[string]any{
		"infomax_code": target.InfomaxCode,
		"ticker":       target.Ticker,
		"logo_hash":    hash,
		"source":       string(source),
		"artifacts":    artifactCount,
		"timestamp":    o.clock.Now().Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("publish completion failed",
			zap.String("infomax_code", target.InfomaxCode),
			zap.Error(err),
		)
	}
}

// RunBatch processes targets sequentially under one job record, updating the
// job store after every item so observers see live progress.
func (o *Orchestrator) RunBatch(ctx context.Context, jobID string, targets []logo.Target) error {
	job := logo.Job{
		ID:      jobID,
		Status:  logo.JobStatusRunning,
		Total:   len(targets),
		Errors:  []string{},
		Started: o.clock.Now(),
	}
	// The HTTP layer seeds the record at submit time; keep its started_at
	// instead of resetting the clock to worker pickup.
	if existing, err := o.jobs.GetJob(ctx, jobID); err == nil && !existing.Started.IsZero() {
		job.Started = existing.Started
		o.updateJob(ctx, job)
	} else if err := o.jobs.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			job.Errors = append(job.Errors, fmt.Sprintf("batch canceled: %v", ctx.Err()))
			break
		}
		job.Current = target.InfomaxCode
		o.updateJob(ctx, job)

		res := o.AcquireOne(ctx, target)

		job.Completed++
		outcome := logo.ItemOutcome{
			InfomaxCode: target.InfomaxCode,
			Ticker:      target.Ticker,
			Source:      res.Source,
			Succeeded:   res.Succeeded,
		}
		if res.Succeeded {
			job.Succeeded++
		} else {
			job.Failed++
			if res.Err != nil {
				outcome.Error = res.Err.Error()
				job.Errors = append(job.Errors, fmt.Sprintf("%s: %v", target.InfomaxCode, res.Err))
			}
		}
		job.Items = append(job.Items, outcome)
		o.updateJob(ctx, job)
	}

	job.Current = ""
	if job.Completed < job.Total {
		job.Status = logo.JobStatusFailed
	} else {
		job.Status = logo.JobStatusCompleted
	}
	finished := o.clock.Now()
	job.Finished = &finished
	o.updateJob(ctx, job)
	metrics.ObserveBatchJob(string(job.Status))
	o.publishBatchSummary(ctx, job)

	o.logger.Info("batch finished",
		zap.String("job_id", jobID),
		zap.String("status", string(job.Status)),
		zap.Int("total", job.Total),
		zap.Int("success", job.Succeeded),
		zap.Int("failed", job.Failed),
	)
	return nil
}

func (o *Orchestrator) publishBatchSummary(ctx context.Context, job logo.Job) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"event":     "batch_finished",
		"job_id":    job.ID,
		"status":    string(job.Status),
		"total":     job.Total,
		"success":   job.Succeeded,
		"failed":    job.Failed,
		"timestamp": o.clock.Now().Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("publish batch summary failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) updateJob(ctx context.Context, job logo.Job) {
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		o.logger.Warn("job update failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
