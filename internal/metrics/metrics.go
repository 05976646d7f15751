package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	Deliveries       *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	Skipped          prometheus.Counter
	DispatchLatency  prometheus.Histogram
	Enqueued         prometheus.Counter
	Drained          prometheus.Counter
	DrainFailures    prometheus.Counter
	QueuePending     prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// A custom registry (instead of prometheus.DefaultRegisterer) keeps tests
// isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notice_deliveries_total",
			Help: "Notices delivered, by medium.",
		}, []string{"medium"}),

		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notice_delivery_failures_total",
			Help: "Recipient-scoped delivery failures, by medium.",
		}, []string{"medium"}),

		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notice_delivery_seconds",
			Help:    "Time spent delivering one notice to one recipient, by medium.",
			Buckets: prometheus.DefBuckets,
		}, []string{"medium"}),

		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notice_recipients_skipped_total",
			Help: "Recipients with every medium disabled.",
		}),

		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notice_dispatch_seconds",
			Help:    "Duration of a whole dispatch call across all recipients.",
			Buckets: prometheus.DefBuckets,
		}),

		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notice_queue_enqueued_total",
			Help: "Dispatch requests written to the deferred queue.",
		}),

		Drained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notice_queue_drained_total",
			Help: "Queued dispatches claimed and processed by a drain.",
		}),

		DrainFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notice_queue_drain_failures_total",
			Help: "Queued dispatches discarded because dispatch failed call-wide.",
		}),

		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notice_queue_pending",
			Help: "Unclaimed rows in the deferred queue after the last drain.",
		}),
	}

	reg.MustRegister(
		m.Deliveries,
		m.DeliveryFailures,
		m.DeliveryLatency,
		m.Skipped,
		m.DispatchLatency,
		m.Enqueued,
		m.Drained,
		m.DrainFailures,
		m.QueuePending,
	)

	return m
}

// DeliveryHooks returns the callbacks expected by service.DeliveryHooks.
// Keeps the prometheus calls here so the dispatcher stays import-free.
func (m *Metrics) DeliveryHooks() (
	onDelivered func(domain.Medium, time.Duration),
	onFailed func(domain.Medium),
	onSkipped func(),
	onDispatched func(time.Duration),
) {
	onDelivered = func(md domain.Medium, latency time.Duration) {
		m.Deliveries.WithLabelValues(string(md)).Inc()
		m.DeliveryLatency.WithLabelValues(string(md)).Observe(latency.Seconds())
	}
	onFailed = func(md domain.Medium) {
		label := string(md)
		if label == "" {
			label = "none"
		}
		m.DeliveryFailures.WithLabelValues(label).Inc()
	}
	onSkipped = func() { m.Skipped.Inc() }
	onDispatched = func(d time.Duration) { m.DispatchLatency.Observe(d.Seconds()) }
	return
}

// DrainHooks returns the callbacks expected by worker.MetricHooks.
func (m *Metrics) DrainHooks() (
	onDrained func(report *domain.DrainReport),
	onPending func(n int),
) {
	onDrained = func(r *domain.DrainReport) {
		m.Drained.Add(float64(r.Claimed))
		m.DrainFailures.Add(float64(r.Failed))
	}
	onPending = func(n int) { m.QueuePending.Set(float64(n)) }
	return
}
