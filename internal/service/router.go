package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// Enqueuer persists a dispatch request for a later drain.
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.DispatchRequest) (*domain.QueuedDispatch, error)
}

// RouterConfig is the send policy. It is passed in rather than read from a
// global so routers with different policies can coexist.
type RouterConfig struct {
	QueueAllByDefault bool
}

// SendOptions are the per-call overrides of the send policy.
type SendOptions struct {
	Now   bool `json:"now"`
	Queue bool `json:"queue"`
}

// SendResult carries the dispatch report when the notice was sent now, or
// the queued row when it was deferred. Exactly one is set.
type SendResult struct {
	Report *domain.DispatchReport `json:"report,omitempty"`
	Queued *domain.QueuedDispatch `json:"queued,omitempty"`
}

// Router decides between dispatching immediately and queueing.
type Router struct {
	dispatcher *Dispatcher
	queue      Enqueuer
	cfg        RouterConfig
	logger     *zap.Logger
}

func NewRouter(dispatcher *Dispatcher, queue Enqueuer, cfg RouterConfig, logger *zap.Logger) *Router {
	return &Router{dispatcher: dispatcher, queue: queue, cfg: cfg, logger: logger}
}

// Send dispatches when opts.Now is set, queues when opts.Queue is set, and
// otherwise follows QueueAllByDefault. Setting both is domain.ErrConfig.
func (r *Router) Send(ctx context.Context, req domain.DispatchRequest, opts SendOptions) (*SendResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if r.shouldQueue(opts) {
		q, err := r.queue.Enqueue(ctx, req)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("notice queued", zap.String("label", req.Label), zap.Int64("id", q.ID))
		return &SendResult{Queued: q}, nil
	}

	report, err := r.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SendResult{Report: report}, nil
}

// Validate rejects asking for both immediate and queued delivery.
func (o SendOptions) Validate() error {
	if o.Now && o.Queue {
		return domain.ErrConfig
	}
	return nil
}

func (r *Router) shouldQueue(opts SendOptions) bool {
	switch {
	case opts.Queue:
		return true
	case opts.Now:
		return false
	}
	return r.cfg.QueueAllByDefault
}
