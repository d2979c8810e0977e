// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rebalance"

var (
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "connections",
		Help:      "Database pool connections by state",
	}, []string{"state"})

	SignalsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "received_total",
		Help:      "Signals accepted by the ingress",
	}, []string{"signal_type"})

	SignalsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "dispatched_total",
		Help:      "Signals dispatched by outcome",
	}, []string{"signal_type", "status"})

	UsersEvaluatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "users_evaluated_total",
		Help:      "Per-user eligibility decisions",
	}, []string{"decision"})

	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "total",
		Help:      "Execution tasks by outcome",
	}, []string{"signal_type", "outcome"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "duration_seconds",
		Help:      "Execution task duration",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"outcome"})

	AggregatorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "request_duration_seconds",
		Help:      "Swap aggregator request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Pending jobs per queue",
	}, []string{"queue"})

	StalePendingReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reaper",
		Name:      "transactions_failed_total",
		Help:      "Pending transactions failed by the stale sweep",
	})
)

// RecordExecution observes one finished execution task
func RecordExecution(signalType, outcome string, started time.Time) {
	ExecutionsTotal.WithLabelValues(signalType, outcome).Inc()
	ExecutionDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

// RecordAggregatorRequest observes one aggregator call
func RecordAggregatorRequest(endpoint, status string, started time.Time) {
	AggregatorRequestDuration.WithLabelValues(endpoint, status).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
