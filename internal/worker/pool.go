package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/queue"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnDrained func(report *domain.DrainReport)
	OnPending func(n int)
}

// Pool manages the lifecycle of the drain workers. Each Trigger wakes every
// idle worker once; busy workers are not queued up behind themselves.
type Pool struct {
	workers  []*Worker
	triggers chan struct{}
	wg       sync.WaitGroup
}

// NewPool creates size identical drain workers.
func NewPool(
	size int,
	drainer Drainer,
	opts queue.DrainOptions,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	if size < 1 {
		size = 1
	}
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(
			i, drainer, opts,
			logger.With(zap.Int("worker_id", i)),
			hooks.OnDrained,
			hooks.OnPending,
		)
	}
	return &Pool{workers: workers, triggers: make(chan struct{}, size)}
}

// Start launches all workers as goroutines.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx, p.triggers)
		}(w)
	}
}

// Trigger asks every worker to drain. It never blocks; triggers beyond the
// pool's size are dropped while workers are busy.
func (p *Pool) Trigger() {
	for range p.workers {
		select {
		case p.triggers <- struct{}{}:
		default:
			return
		}
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight drains finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
