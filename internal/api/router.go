package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/api/handler"
	apimw "github.com/notifyhub/notice-dispatch/internal/api/middleware"
	"github.com/notifyhub/notice-dispatch/internal/queue"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

// Services are the application components the HTTP surface exposes.
type Services struct {
	Registry     *service.Registry
	Preferences  *service.Preferences
	Router       *service.Router
	Observations *service.Observations
	Queue        *queue.DeferredQueue
	DrainOptions queue.DrainOptions
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(svc Services, reg prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID(logger))
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	th := handler.NewNoticeTypeHandler(svc.Registry, logger)
	sh := handler.NewSettingsHandler(svc.Preferences, logger)
	nh := handler.NewNoticeHandler(svc.Router, logger)
	qh := handler.NewQueueHandler(svc.Queue, svc.DrainOptions, logger)
	oh := handler.NewObservationHandler(svc.Observations, logger)
	hh := handler.NewHealthHandler(func(ctx context.Context) error {
		_, err := svc.Queue.Pending(ctx)
		return err
	})

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notice-types", th.Create)
		r.Get("/notice-types", th.List)
		r.Get("/notice-types/{label}", th.Get)

		r.Get("/users/{userID}/settings", sh.List)
		r.Put("/users/{userID}/settings/{label}/{medium}", sh.Set)

		r.Post("/notices/send", nh.Send)

		r.Post("/queue/drain", qh.Drain)
		r.Get("/queue/stats", qh.Stats)

		r.Post("/observations", oh.Observe)
		r.Delete("/observations", oh.StopObserving)
		r.Post("/observations/notify", oh.Notify)
	})

	return r
}
