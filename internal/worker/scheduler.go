package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires a pool's Trigger on a cron schedule such as "@every 1m"
// or "*/5 * * * *".
type Scheduler struct {
	c      *cron.Cron
	logger *zap.Logger
}

// NewScheduler validates spec and registers the pool trigger.
func NewScheduler(spec string, pool *Pool, logger *zap.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger{logger.Sugar()}))

	if _, err := c.AddFunc(spec, pool.Trigger); err != nil {
		return nil, fmt.Errorf("drain schedule %q: %w", spec, err)
	}
	return &Scheduler{c: c, logger: logger}, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// a running trigger to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("drain scheduler started")
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	s.logger.Info("drain scheduler stopped")
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
