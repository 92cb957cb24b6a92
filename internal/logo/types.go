// Package logo defines the core types and interfaces for the logo
// acquisition pipeline: targets, raw fetch results, derived artifacts, and
// batch job progress records.
package logo

import "time"

// Source identifies which strategy produced a logo.
type Source string

// Provenance values recorded on logo_files rows.
const (
	SourceWebsite Source = "website"
	SourceLogoDev Source = "logo_dev"
	SourceManual  Source = "manual"
)

// Target identifies one ticker to acquire a logo for.
type Target struct {
	// InfomaxCode is the internal ticker identifier used for hashing.
	InfomaxCode string `json:"infomax_code"`
	// Ticker is the display symbol used to build the website URL.
	Ticker string `json:"ticker"`
	// APIDomain is the company domain for the third-party lookup; empty
	// disables the fallback fetcher.
	APIDomain string `json:"api_domain,omitempty"`
}

// RawLogo is the result of a successful source fetch.
type RawLogo struct {
	Data   []byte
	Source Source
}

// Artifact describes one stored rendition of a logo.
type Artifact struct {
	ObjectKey  string `json:"minio_object_key"`
	Format     string `json:"file_format"`
	Width      *int   `json:"dimension_width"`
	Height     *int   `json:"dimension_height"`
	SizeBytes  int    `json:"file_size"`
	IsOriginal bool   `json:"is_original"`
	Source     Source `json:"data_source"`
}

// JobStatus represents the lifecycle state of a batch job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ItemOutcome records the result for one target within a batch.
type ItemOutcome struct {
	InfomaxCode string `json:"infomax_code"`
	Ticker      string `json:"ticker"`
	Source      Source `json:"source,omitempty"`
	Succeeded   bool   `json:"succeeded"`
	Error       string `json:"error,omitempty"`
}

// Job is the progress record persisted for each batch run.
type Job struct {
	ID        string        `json:"job_id"`
	Status    JobStatus     `json:"status"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Succeeded int           `json:"success"`
	Failed    int           `json:"failed"`
	Current   string        `json:"current"`
	Items     []ItemOutcome `json:"items,omitempty"`
	Errors    []string      `json:"errors"`
	Started   time.Time     `json:"started_at"`
	Finished  *time.Time    `json:"finished_at,omitempty"`
}

// Result summarizes a single acquisition.
type Result struct {
	Target    Target
	Succeeded bool
	Source    Source
	LogoHash  string
	Artifacts []Artifact
	Err       error
}
