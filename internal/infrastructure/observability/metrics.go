package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Payment metrics
	PaymentsTotal   *prometheus.CounterVec
	PaymentDuration *prometheus.HistogramVec
	PaymentErrors   *prometheus.CounterVec

	// Webhook metrics
	WebhookDeliveries *prometheus.CounterVec

	// Outbox metrics
	OutboxPublished         *prometheus.CounterVec
	OutboxPublishFailures   *prometheus.CounterVec
	OutboxPermanentlyFailed *prometheus.CounterVec
	OutboxBacklog           prometheus.Gauge

	// Reconciliation metrics
	ReconcileSweeps  prometheus.Counter
	ReconcileRepairs *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total number of payments by gateway and terminal status",
			},
			[]string{"gateway", "status"},
		),
		PaymentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_duration_seconds",
				Help:      "Payment processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"gateway"},
		),
		PaymentErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_errors_total",
				Help:      "Total number of payment errors",
			},
			[]string{"gateway", "error_type"},
		),
		WebhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook deliveries by gateway and result",
			},
			[]string{"gateway", "result"},
		),
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Total number of outbox records published downstream",
			},
			[]string{"event_type"},
		),
		OutboxPublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_publish_failures_total",
				Help:      "Total number of failed outbox publish attempts",
			},
			[]string{"event_type"},
		),
		OutboxPermanentlyFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_permanently_failed_total",
				Help:      "Outbox records that exhausted every publish attempt",
			},
			[]string{"event_type"},
		),
		OutboxBacklog: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_backlog",
				Help:      "Unprocessed outbox records awaiting publish",
			},
		),
		ReconcileSweeps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_sweeps_total",
				Help:      "Total number of reconciliation sweeps",
			},
		),
		ReconcileRepairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_repairs_total",
				Help:      "Stale payments repaired by the sweeper, by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.PaymentsTotal,
		m.PaymentDuration,
		m.PaymentErrors,
		m.WebhookDeliveries,
		m.OutboxPublished,
		m.OutboxPublishFailures,
		m.OutboxPermanentlyFailed,
		m.OutboxBacklog,
		m.ReconcileSweeps,
		m.ReconcileRepairs,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
