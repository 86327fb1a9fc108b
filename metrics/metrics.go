// Package metrics holds the Prometheus instrumentation of the account
// generator and the standalone server exposing it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "accountgenerator"

	LabelMethod  = "method"
	LabelOutcome = "outcome"
	LabelBackend = "backend"
	LabelStatus  = "status"

	StatusSuccess = "success"
	StatusError   = "error"

	// MethodUnknown replaces method names that are not registered so that
	// clients cannot grow label cardinality.
	MethodUnknown = "unknown"
)

var (
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method and outcome",
		},
		[]string{LabelMethod, LabelOutcome},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "generations_total",
			Help:      "Account generations by backend and status",
		},
		[]string{LabelBackend, LabelStatus},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of account generation in seconds, including time spent waiting for the backend",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelBackend},
	)

	WorkerPoolQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "workerpool",
			Name:      "queued_tasks",
			Help:      "Tasks waiting for a worker",
		},
	)

	WorkerPoolRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "workerpool",
			Name:      "running_tasks",
			Help:      "Tasks currently executing",
		},
	)

	WorkerPoolRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "workerpool",
			Name:      "rejected_tasks_total",
			Help:      "Tasks rejected because the pool was closed or its context expired",
		},
	)
)

// RecordRPC counts one answered JSON-RPC request. Outcome is either
// StatusSuccess or the JSON-RPC error code name.
func RecordRPC(method, outcome string) {
	RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
}

func RecordGeneration(backend string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	GenerationsTotal.WithLabelValues(backend, status).Inc()
	GenerationDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}
