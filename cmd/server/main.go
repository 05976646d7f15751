package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/api"
	"github.com/notifyhub/notice-dispatch/internal/app"
	"github.com/notifyhub/notice-dispatch/internal/config"
	"github.com/notifyhub/notice-dispatch/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- core dependencies ----
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	a, closeStore, err := app.New(ctx, cfg, reg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer closeStore()

	// ---- drain workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	drainOpts := app.DrainOptions(cfg)
	onDrained, onPending := a.Metrics.DrainHooks()
	pool := worker.NewPool(cfg.DrainWorkers, a.Queue, drainOpts, logger.Named("drain"), worker.MetricHooks{
		OnDrained: onDrained,
		OnPending: onPending,
	})
	schedulerDone := make(chan struct{})
	if cfg.DrainEnabled && cfg.DrainWorkers > 0 {
		scheduler, err := worker.NewScheduler(cfg.DrainSchedule, pool, logger.Named("drain"))
		if err != nil {
			logger.Fatal("invalid drain schedule", zap.Error(err))
		}
		pool.Start(workerCtx)
		go func() {
			defer close(schedulerDone)
			scheduler.Run(workerCtx)
		}()
	} else {
		close(schedulerDone)
		logger.Info("scheduled draining disabled")
	}

	// ---- HTTP server ----
	router := api.NewRouter(api.Services{
		Registry:     a.Registry,
		Preferences:  a.Preferences,
		Router:       a.Router,
		Observations: a.Observations,
		Queue:        a.Queue,
		DrainOptions: drainOpts,
	}, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the schedule and tell drain workers to stop between rows.
	cancelWorkers()
	<-schedulerDone

	// 3. Wait for in-flight drains to return.
	pool.Wait()

	logger.Info("server stopped cleanly")
}
