// Package postgres persists batch job records in Postgres. The full record
// is stored as a JSONB document alongside indexed status columns.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbrand/logo-crawler/internal/logo"
)

// Config controls the connection pool for the job table.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store is a Postgres-backed logo.JobStore.
type Store struct {
	pool pool
}

// NewStore connects a pool and returns the store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("jobs.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool wires an existing pool, used by tests.
func NewStoreWithPool(p pool) *Store {
	return &Store{pool: p}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateJob inserts the initial record; re-running the same job ID updates
// it in place.
func (s *Store) CreateJob(ctx context.Context, job logo.Job) error {
	return s.upsert(ctx, job)
}

// UpdateJob replaces the stored record with the latest counters.
func (s *Store) UpdateJob(ctx context.Context, job logo.Job) error {
	return s.upsert(ctx, job)
}

func (s *Store) upsert(ctx context.Context, job logo.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	query := `
		INSERT INTO logo_jobs (job_id, status, started_at, finished_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status,
		    finished_at = EXCLUDED.finished_at,
		    payload = EXCLUDED.payload;
	`
	if _, err := s.pool.Exec(ctx, query, job.ID, job.Status, job.Started, job.Finished, payload); err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads one record or returns logo.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, jobID string) (logo.Job, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM logo_jobs WHERE job_id = $1;`, jobID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return logo.Job{}, logo.ErrNotFound
		}
		return logo.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	var job logo.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return logo.Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

var _ logo.JobStore = (*Store)(nil)
