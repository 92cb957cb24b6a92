// Package memory keeps batch job records in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/finbrand/logo-crawler/internal/logo"
)

// Store is an in-memory logo.JobStore.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]logo.Job
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]logo.Job)}
}

// CreateJob records a new job.
func (s *Store) CreateJob(_ context.Context, job logo.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// UpdateJob replaces the stored record.
func (s *Store) UpdateJob(_ context.Context, job logo.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns the record or logo.ErrNotFound.
func (s *Store) GetJob(_ context.Context, jobID string) (logo.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return logo.Job{}, logo.ErrNotFound
	}
	return cloneJob(job), nil
}

// cloneJob copies the slices so callers cannot mutate stored state.
func cloneJob(job logo.Job) logo.Job {
	out := job
	out.Items = append([]logo.ItemOutcome(nil), job.Items...)
	out.Errors = append([]string(nil), job.Errors...)
	return out
}

var _ logo.JobStore = (*Store)(nil)
