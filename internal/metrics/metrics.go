// Package metrics defines the Prometheus collectors of the ledger.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stockledger"

// Metrics groups the collectors updated by services and middleware.
type Metrics struct {
	Operations           *prometheus.CounterVec
	ClampedLegs          *prometheus.CounterVec
	ReconciliationErrors *prometheus.CounterVec
	AuditTransitions     *prometheus.CounterVec
	Notifications        *prometheus.CounterVec
	DroppedNotifications prometheus.Counter
	Subscribers          prometheus.Gauge
	DriftItems           prometheus.Gauge
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New registers the collectors on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		ClampedLegs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clamped_legs_total",
			Help:      "Ledger legs whose quantity was floored at zero.",
		}, []string{"type"}),
		ReconciliationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_errors_total",
			Help:      "Failed multi-leg units, by whether rollback was confirmed.",
		}, []string{"op", "rolled_back"}),
		AuditTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_transitions_total",
			Help:      "Audit status transitions by target status.",
		}, []string{"status"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Notifications published by type.",
		}, []string{"type"}),
		DroppedNotifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Deliveries dropped because a subscriber was full.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Live notification subscriptions.",
		}),
		DriftItems: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drift_items",
			Help:      "Items whose quantity differs from their ledger sum at the last scan.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Outcome labels for Operations.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)
