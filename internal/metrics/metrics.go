// Package metrics holds the Prometheus collectors shared by the HTTP layer,
// the services and the storage layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	CartChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_changes_total",
			Help: "Cart mutations by operation and result",
		},
		[]string{"operation", "result"},
	)

	TxConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tx_conflicts_total",
			Help: "Database transactions aborted by serialization conflicts or deadlocks",
		},
	)

	OrdersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders snapshotted from carts",
		},
	)

	OrdersFulfilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_fulfilled_total",
			Help: "Order messages handled by the fulfillment worker, by result",
		},
		[]string{"result"},
	)

	PublisherBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "order_publisher_breaker_state",
			Help: "State of the order publisher circuit breaker (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
	ResultSkipped  = "skipped"
)
