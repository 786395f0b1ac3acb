// Package metrics declares the Prometheus collectors for counting and sync.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tally"

var (
	// PersonalCount is the device's local running total.
	PersonalCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "personal_count",
		Help:      "Local personal count on this device.",
	})

	// SyncPending is the delta waiting to be applied remotely.
	SyncPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "pending",
		Help:      "Increments accepted locally but not yet applied to the global count.",
	})

	// SyncOutcomes counts submit/flush results by operation and outcome.
	SyncOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "outcomes_total",
		Help:      "Sync results by operation (submit, flush) and outcome.",
	}, []string{"op", "outcome"})

	// RemoteDuration observes remote store calls.
	RemoteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "call_duration_seconds",
		Help:      "Latency of remote aggregate store calls.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"op", "status"})

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	// SubscriptionRestarts counts re-subscriptions after a broken stream.
	SubscriptionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "subscription_restarts_total",
		Help:      "Times a remote subscription was re-established.",
	}, []string{"key"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
