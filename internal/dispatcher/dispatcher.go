// Package dispatcher manages worker fan-out over the batch queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/queue"
)

// BatchRunner executes one queued batch under its job ID.
type BatchRunner interface {
	RunBatch(ctx context.Context, jobID string, targets []logo.Target) error
}

// Dispatcher fans out queued batches to a fixed pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	runner  BatchRunner
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(q queue.Queue, runner BatchRunner, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   q,
		runner:  runner,
		workers: workers,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id)
		}(i)
	}
	<-ctx.Done()
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("queue dequeue failed", zap.Int("worker", id), zap.Error(err))
			continue
		}
		d.logger.Debug("dequeued batch",
			zap.Int("worker", id),
			zap.String("job_id", item.JobID),
			zap.Int("targets", len(item.Targets)),
		)
		if err := d.runner.RunBatch(ctx, item.JobID, item.Targets); err != nil {
			d.logger.Error("batch run failed", zap.String("job_id", item.JobID), zap.Error(err))
		}
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item queue.Item) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
