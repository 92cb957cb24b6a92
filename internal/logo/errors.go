package logo

import "errors"

// Sentinel errors shared across the pipeline.
var (
	// ErrNotFound indicates a lookup matched no rows.
	ErrNotFound = errors.New("not found")
	// ErrAllSourcesFailed indicates every fetch strategy came back empty.
	ErrAllSourcesFailed = errors.New("all logo sources failed")
	// ErrNoArtifacts indicates conversion produced nothing storable.
	ErrNoArtifacts = errors.New("no artifacts produced")
)
