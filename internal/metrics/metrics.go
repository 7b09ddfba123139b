package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GRPCServerHandlingSeconds is a histogram for gRPC server request latencies
	GRPCServerHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "Histogram of response latency (seconds) of gRPC that had been application-level handled by the server.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "code"},
	)

	// ModelLatencySeconds is a histogram of model-only latency per modality
	ModelLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_latency_seconds",
			Help:    "Histogram of model invocation latency (seconds) excluding preprocessing and fusion.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"modality"},
	)

	// CacheOutcomes counts how submitted requests were served
	CacheOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_requests_total",
			Help: "Requests seen by the coordinator, by outcome (hit, miss, attached, l2_hit, failed_cached).",
		},
		[]string{"outcome"},
	)

	// InflightRequests is the number of fingerprints currently pending
	InflightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coordinator_inflight_requests",
			Help: "Number of distinct fingerprints with a computation in flight.",
		},
	)

	// Decisions counts classification results by label and modality
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_decisions_total",
			Help: "Classification decisions by label and modality.",
		},
		[]string{"label", "modality"},
	)

	// Failures counts failed requests by error kind
	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_failures_total",
			Help: "Failed classification requests by error kind.",
		},
		[]string{"kind"},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordGRPCLatency records the latency of a gRPC method call
func RecordGRPCLatency(method, code string, seconds float64) {
	GRPCServerHandlingSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordModelLatency records the latency of one model call
func RecordModelLatency(modality string, seconds float64) {
	ModelLatencySeconds.WithLabelValues(modality).Observe(seconds)
}

// RecordCacheOutcome counts one coordinator outcome
func RecordCacheOutcome(outcome string) {
	CacheOutcomes.WithLabelValues(outcome).Inc()
}

// SetInflight sets the number of pending fingerprints
func SetInflight(n int) {
	InflightRequests.Set(float64(n))
}

// RecordDecision counts one classification result
func RecordDecision(label, modality string) {
	Decisions.WithLabelValues(label, modality).Inc()
}

// RecordFailure counts one failed request
func RecordFailure(kind string) {
	Failures.WithLabelValues(kind).Inc()
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
