// Command drain empties the deferred notice queue once and exits. It is
// meant to be run from cron or a job scheduler.
//
// Exit status is 0 when the drain ran to completion, even if individual
// queued notices failed, 1 when the queue could not be drained at all, and 2
// on invalid flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/app"
	"github.com/notifyhub/notice-dispatch/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	opts := app.DrainOptions(cfg)
	flag.IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "queued dispatches claimed per batch")
	flag.IntVar(&opts.MaxItems, "max-items", opts.MaxItems, "stop after this many dispatches (0 = until empty)")
	flag.Parse()
	if opts.BatchSize <= 0 || opts.MaxItems < 0 {
		fmt.Fprintln(os.Stderr, "batch-size must be positive and max-items not negative")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, closeStore, err := app.New(ctx, cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return 1
	}
	defer closeStore()

	report, err := a.Queue.Drain(ctx, opts)
	if err != nil {
		logger.Error("drain failed", zap.Error(err))
		return 1
	}

	logger.Info("drain complete",
		zap.Int("batches", report.Batches),
		zap.Int("claimed", report.Claimed),
		zap.Int("dispatched", report.Dispatched),
		zap.Int("failed", report.Failed),
	)
	return 0
}
