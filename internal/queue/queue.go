// Package queue defines the work queue feeding batch acquisitions to the
// worker pool.
package queue

import (
	"context"

	"github.com/finbrand/logo-crawler/internal/logo"
)

// Item is one batch of tickers scheduled under a job ID.
type Item struct {
	JobID   string
	Targets []logo.Target
}

// Queue provides enqueue/dequeue semantics for batch jobs.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
	Close()
}
