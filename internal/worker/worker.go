package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/queue"
)

// Drainer is the deferred queue as seen by drain workers.
type Drainer interface {
	Drain(ctx context.Context, opts queue.DrainOptions) (*domain.DrainReport, error)
	Pending(ctx context.Context) (int, error)
}

// Worker is a single goroutine that drains the deferred queue each time it
// receives a trigger. Several workers drain the same table concurrently;
// the queue's claim step keeps their rows disjoint.
type Worker struct {
	id      int
	drainer Drainer
	opts    queue.DrainOptions
	logger  *zap.Logger

	// Hooks for metrics, injected by the pool so the worker stays metrics-agnostic.
	onDrained func(report *domain.DrainReport)
	onPending func(n int)
}

// NewWorker constructs a worker. onDrained and onPending are optional (nil = no-op).
func NewWorker(
	id int,
	drainer Drainer,
	opts queue.DrainOptions,
	logger *zap.Logger,
	onDrained func(*domain.DrainReport),
	onPending func(int),
) *Worker {
	if onDrained == nil {
		onDrained = func(*domain.DrainReport) {}
	}
	if onPending == nil {
		onPending = func(int) {}
	}
	return &Worker{
		id: id, drainer: drainer, opts: opts, logger: logger,
		onDrained: onDrained, onPending: onPending,
	}
}

// Run blocks until ctx is cancelled or triggers is closed, draining once per
// trigger.
func (w *Worker) Run(ctx context.Context, triggers <-chan struct{}) {
	w.logger.Info("drain worker started", zap.Int("id", w.id))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("drain worker stopping", zap.Int("id", w.id))
			return
		case _, ok := <-triggers:
			if !ok {
				w.logger.Info("drain worker stopping", zap.Int("id", w.id))
				return
			}
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	start := time.Now()

	report, err := w.drainer.Drain(ctx, w.opts)
	if err != nil {
		w.logger.Error("drain failed", zap.Error(err))
	}
	if report != nil {
		w.onDrained(report)
		if report.Claimed > 0 {
			w.logger.Debug("drain finished",
				zap.Int("claimed", report.Claimed),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
	}

	if ctx.Err() != nil {
		return
	}
	pending, err := w.drainer.Pending(ctx)
	if err != nil {
		w.logger.Warn("failed to count pending dispatches", zap.Error(err))
		return
	}
	w.onPending(pending)
}
