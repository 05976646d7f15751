package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/repository"
)

// Dispatcher delivers one stored request. *service.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchReport, error)
}

// NoticeTypes looks up labels at enqueue time.
type NoticeTypes interface {
	Get(ctx context.Context, label string) (*domain.NoticeType, error)
}

// DefaultClaimTTL is how long a claim protects a row before another drain
// may take it over.
const DefaultClaimTTL = 15 * time.Minute

// DefaultBatchSize is used when DrainOptions.BatchSize is not positive.
const DefaultBatchSize = 50

// Config tunes the queue. Zero values take the defaults above.
type Config struct {
	ClaimTTL time.Duration
	// OnEnqueued is an optional metric callback.
	OnEnqueued func()
}

// DrainOptions bound one drain. MaxItems <= 0 means until empty.
type DrainOptions struct {
	BatchSize int
	MaxItems  int
}

// DeferredQueue persists dispatch requests and feeds them to the dispatcher
// when drained. Rows are claimed before processing and deleted after, so
// concurrent drains never share a row and a crashed drain's rows become
// claimable again once ClaimTTL has passed.
type DeferredQueue struct {
	repo       repository.DispatchQueueRepository
	types      NoticeTypes
	dispatcher Dispatcher
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

func New(
	repo repository.DispatchQueueRepository,
	types NoticeTypes,
	dispatcher Dispatcher,
	cfg Config,
	logger *zap.Logger,
) *DeferredQueue {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	return &DeferredQueue{
		repo:       repo,
		types:      types,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue validates req and stores it. The label must already exist and the
// context must be render-safe; both are checked now so bad calls fail at the
// caller instead of during a later drain.
func (q *DeferredQueue) Enqueue(ctx context.Context, req domain.DispatchRequest) (*domain.QueuedDispatch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := q.types.Get(ctx, req.Label); err != nil {
		return nil, err
	}

	d := &domain.QueuedDispatch{
		Recipients: append([]domain.UserID(nil), req.Recipients...),
		Label:      req.Label,
		Context:    req.Context,
		OnSite:     req.OnSite,
		Sender:     req.Sender,
		EnqueuedAt: q.now(),
	}
	if err := q.repo.InsertDispatch(ctx, d); err != nil {
		return nil, fmt.Errorf("%w: enqueue: %w", domain.ErrPersistence, err)
	}
	if q.cfg.OnEnqueued != nil {
		q.cfg.OnEnqueued()
	}

	q.logger.Debug("dispatch queued",
		zap.Int64("id", d.ID),
		zap.String("label", d.Label),
		zap.Int("recipients", len(d.Recipients)),
	)
	return d, nil
}

// Drain claims pending rows oldest first, BatchSize at a time, dispatches
// each and deletes it. A row whose dispatch fails is logged and discarded.
// It stops when nothing is pending, MaxItems rows were claimed, or ctx is
// done. Only a failing claim is returned as an error.
func (q *DeferredQueue) Drain(ctx context.Context, opts DrainOptions) (*domain.DrainReport, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	owner := uuid.New().String()
	logger := q.logger.With(zap.String("owner", owner))
	report := &domain.DrainReport{}

	for {
		if err := ctx.Err(); err != nil {
			return report, nil
		}

		limit := batch
		if opts.MaxItems > 0 {
			remaining := opts.MaxItems - report.Claimed
			if remaining <= 0 {
				break
			}
			limit = min(limit, remaining)
		}

		rows, err := q.repo.ClaimDispatches(ctx, owner, limit, q.now().Add(-q.cfg.ClaimTTL))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return report, nil
			}
			return report, fmt.Errorf("%w: claim dispatches: %w", domain.ErrPersistence, err)
		}
		if len(rows) == 0 {
			break
		}

		report.Batches++
		report.Claimed += len(rows)
		for i, row := range rows {
			if ctx.Err() != nil {
				// Unprocessed rows stay claimed and are picked up again after ClaimTTL.
				logger.Warn("drain interrupted", zap.Int("left_claimed", len(rows)-i))
				return report, nil
			}
			report.ClaimedIDs = append(report.ClaimedIDs, row.ID)
			q.process(ctx, row, report, logger)
		}
	}

	if report.Claimed > 0 {
		logger.Info("queue drained",
			zap.Int("batches", report.Batches),
			zap.Int("claimed", report.Claimed),
			zap.Int("dispatched", report.Dispatched),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func (q *DeferredQueue) process(ctx context.Context, row *domain.QueuedDispatch, report *domain.DrainReport, logger *zap.Logger) {
	logger = logger.With(zap.Int64("id", row.ID), zap.String("label", row.Label))

	var (
		res *domain.DispatchReport
		err = row.DecodeErr
	)
	if err == nil {
		res, err = q.dispatcher.Dispatch(ctx, row.Request())
	}
	if err != nil {
		report.Failed++
		logger.Error("queued dispatch discarded", zap.Error(err))
	} else {
		report.Dispatched++
		if len(res.Failures) > 0 {
			logger.Warn("queued dispatch had recipient failures", zap.Int("failures", len(res.Failures)))
		}
	}

	// The row stays claimed if the delete fails, and is retried after ClaimTTL.
	if err := q.repo.DeleteDispatch(context.WithoutCancel(ctx), row.ID); err != nil {
		logger.Error("failed to delete drained dispatch", zap.Error(err))
	}
}

// Pending counts rows that a drain would claim now.
func (q *DeferredQueue) Pending(ctx context.Context) (int, error) {
	return q.repo.CountPendingDispatches(ctx, q.now().Add(-q.cfg.ClaimTTL))
}
