// Package app assembles the notice dispatch components from configuration.
// Both binaries share it so the server and the drain command deliver
// notices identically.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/config"
	"github.com/notifyhub/notice-dispatch/internal/db"
	"github.com/notifyhub/notice-dispatch/internal/mail"
	"github.com/notifyhub/notice-dispatch/internal/metrics"
	"github.com/notifyhub/notice-dispatch/internal/queue"
	"github.com/notifyhub/notice-dispatch/internal/ratelimiter"
	"github.com/notifyhub/notice-dispatch/internal/render"
	"github.com/notifyhub/notice-dispatch/internal/repository"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

type App struct {
	Store        repository.Store
	Metrics      *metrics.Metrics
	Registry     *service.Registry
	Preferences  *service.Preferences
	Dispatcher   *service.Dispatcher
	Queue        *queue.DeferredQueue
	Router       *service.Router
	Observations *service.Observations
}

// New opens the database and builds every component. The returned close
// function releases the database.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*App, func(), error) {
	store, closeStore, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	a, err := Build(ctx, cfg, store, reg, logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return a, closeStore, nil
}

// Build wires the components over an already opened store and seeds notice
// types when NOTICE_TYPES_FILE is set.
func Build(ctx context.Context, cfg *config.Config, store repository.Store, reg prometheus.Registerer, logger *zap.Logger) (*App, error) {
	transport, err := mail.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}

	layers := []fs.FS{render.Defaults()}
	if cfg.TemplateDir != "" {
		layers = append([]fs.FS{os.DirFS(cfg.TemplateDir)}, layers...)
	}

	m := metrics.New(reg)
	onDelivered, onFailed, onSkipped, onDispatched := m.DeliveryHooks()

	a := &App{Store: store, Metrics: m}
	a.Registry = service.NewRegistry(store, logger.Named("registry"))
	a.Preferences = service.NewPreferences(a.Registry, store, logger.Named("preferences"))
	a.Dispatcher = service.NewDispatcher(service.DispatcherDeps{
		Types:    a.Registry,
		Prefs:    a.Preferences,
		Renderer: render.NewRenderer(render.NewFSSource(layers...)),
		Notices:  store,
		Users:    store,
		Mail:     transport,
		Limiter:  ratelimiter.New(cfg.MailRateLimit),
		Hooks: service.DeliveryHooks{
			OnDelivered:  onDelivered,
			OnFailed:     onFailed,
			OnSkipped:    onSkipped,
			OnDispatched: onDispatched,
		},
		Logger: logger.Named("dispatcher"),
	}, service.DispatcherConfig{
		SiteName:   cfg.SiteName,
		NoticesURL: cfg.NoticesURL(),
	})
	a.Queue = queue.New(store, a.Registry, a.Dispatcher, queue.Config{
		ClaimTTL:   cfg.DrainClaimTTL,
		OnEnqueued: m.Enqueued.Inc,
	}, logger.Named("queue"))
	a.Router = service.NewRouter(a.Dispatcher, a.Queue, service.RouterConfig{
		QueueAllByDefault: cfg.QueueAllByDefault,
	}, logger.Named("router"))
	a.Observations = service.NewObservations(a.Registry, store, a.Router, logger.Named("observations"))

	if cfg.NoticeTypesFile != "" {
		n, err := a.Registry.Seed(ctx, cfg.NoticeTypesFile)
		if err != nil {
			return nil, err
		}
		logger.Info("notice types seeded", zap.String("file", cfg.NoticeTypesFile), zap.Int("created", n))
	}
	return a, nil
}

// DrainOptions are the configured bounds of one drain.
func DrainOptions(cfg *config.Config) queue.DrainOptions {
	return queue.DrainOptions{BatchSize: cfg.DrainBatchSize, MaxItems: cfg.DrainMaxItems}
}
