package logo

import (
	"context"
	"time"
)

// Fetcher attempts to obtain a single raw logo for a target. A (nil, nil)
// return means the source had nothing; only infrastructure-level problems
// surface as errors, and the orchestrator treats both the same way.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) ([]byte, error)
	Source() Source
}

// Converter derives the artifact map (key -> encoded bytes) from one raw
// image. Implementations must never return an empty map for non-empty input.
type Converter interface {
	Convert(data []byte) map[string][]byte
}

// BlobStore writes derived artifacts under deterministic keys.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, data []byte) error
}

// QuotaGate enforces the daily budget for paid external APIs.
type QuotaGate interface {
	// Allow reports whether n more calls fit in today's budget. Unreachable
	// counter stores read as allowed (fail-open).
	Allow(ctx context.Context, apiName string, n int) bool
	// Consume charges n calls against today's counter.
	Consume(ctx context.Context, apiName string, n int) error
}

// Recorder persists logo and artifact metadata rows.
type Recorder interface {
	// UpsertLogo ensures a logos row for the hash and returns its id.
	UpsertLogo(ctx context.Context, logoHash string) (int64, error)
	// UpsertArtifact writes one logo_files row keyed on the object key.
	UpsertArtifact(ctx context.Context, logoID int64, artifact Artifact) error
	// MasterHash resolves the canonical hash for an infomax code from the
	// logo_master view; ErrNotFound when no master row exists.
	MasterHash(ctx context.Context, infomaxCode string) (string, error)
}

// JobStore persists batch progress records.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
