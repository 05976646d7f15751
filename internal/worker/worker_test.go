package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/queue"
)

type fakeDrainer struct {
	drains  atomic.Int32
	release chan struct{}
	err     error
	pending int
	mu      sync.Mutex
	opts    []queue.DrainOptions
}

func (f *fakeDrainer) Drain(ctx context.Context, opts queue.DrainOptions) (*domain.DrainReport, error) {
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	f.drains.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	return &domain.DrainReport{Batches: 1, Claimed: 3, Dispatched: 2, Failed: 1}, f.err
}

func (f *fakeDrainer) Pending(context.Context) (int, error) {
	return f.pending, nil
}

func TestPool_TriggerDrainsOnEveryWorker(t *testing.T) {
	d := &fakeDrainer{release: make(chan struct{}), pending: 7}
	var claimed, pending atomic.Int32
	hooks := MetricHooks{
		OnDrained: func(r *domain.DrainReport) { claimed.Add(int32(r.Claimed)) },
		OnPending: func(n int) { pending.Store(int32(n)) },
	}
	p := NewPool(2, d, queue.DrainOptions{BatchSize: 10, MaxItems: 100}, zap.NewNop(), hooks)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Trigger()
	require.Eventually(t, func() bool { return d.drains.Load() == 2 }, time.Second, 5*time.Millisecond)

	// Both workers are busy: extra triggers are buffered up to the pool size
	// and never block the caller.
	for i := 0; i < 10; i++ {
		p.Trigger()
	}
	close(d.release)

	require.Eventually(t, func() bool { return d.drains.Load() == 4 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return claimed.Load() == 12 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(7), pending.Load())

	cancel()
	p.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.opts {
		assert.Equal(t, queue.DrainOptions{BatchSize: 10, MaxItems: 100}, o)
	}
}

func TestWorker_DrainErrorStillReports(t *testing.T) {
	d := &fakeDrainer{err: errors.New("db down")}
	var reports int
	w := NewWorker(0, d, queue.DrainOptions{}, zap.NewNop(), func(*domain.DrainReport) { reports++ }, nil)

	triggers := make(chan struct{}, 1)
	triggers <- struct{}{}
	close(triggers)
	w.Run(context.Background(), triggers)

	assert.Equal(t, int32(1), d.drains.Load())
	assert.Equal(t, 1, reports)
}

func TestNewPool_MinimumOneWorker(t *testing.T) {
	p := NewPool(0, &fakeDrainer{}, queue.DrainOptions{}, zap.NewNop(), MetricHooks{})
	assert.Len(t, p.workers, 1)
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	p := NewPool(1, &fakeDrainer{}, queue.DrainOptions{}, zap.NewNop(), MetricHooks{})
	_, err := NewScheduler("every minute please", p, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_TriggersPool(t *testing.T) {
	d := &fakeDrainer{}
	p := NewPool(1, d, queue.DrainOptions{}, zap.NewNop(), MetricHooks{})
	s, err := NewScheduler("@every 1s", p, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return d.drains.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	<-done
	p.Wait()
}
