// Package file persists batch job records as one JSON document per job
// under a progress directory, readable by external monitoring scripts.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/finbrand/logo-crawler/internal/logo"
)

// Job IDs are UUIDs; anything else is rejected before touching the
// filesystem so a crafted ID cannot escape the progress directory.
var validJobID = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Store is a filesystem-backed logo.JobStore.
type Store struct {
	dir string
}

// NewStore creates the progress directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("progress directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create progress dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// CreateJob writes the initial progress document.
func (s *Store) CreateJob(ctx context.Context, job logo.Job) error {
	return s.write(ctx, job)
}

// UpdateJob rewrites the progress document with the latest counters.
func (s *Store) UpdateJob(ctx context.Context, job logo.Job) error {
	return s.write(ctx, job)
}

// GetJob loads a progress document or returns logo.ErrNotFound.
func (s *Store) GetJob(_ context.Context, jobID string) (logo.Job, error) {
	path, err := s.jobPath(jobID)
	if err != nil {
		return logo.Job{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return logo.Job{}, logo.ErrNotFound
		}
		return logo.Job{}, fmt.Errorf("read job %s: %w", jobID, err)
	}
	var job logo.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return logo.Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *Store) write(ctx context.Context, job logo.Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	path, err := s.jobPath(job.ID)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	// Write-then-rename keeps readers from observing a half-written file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write job %s: %w", job.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) jobPath(jobID string) (string, error) {
	if !validJobID.MatchString(jobID) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return filepath.Join(s.dir, jobID+".json"), nil
}

var _ logo.JobStore = (*Store)(nil)
