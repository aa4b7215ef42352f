package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	ObserveConflict(ctx context.Context)
}

// NoopMetricsRecorder discards all observations.
type NoopMetricsRecorder struct{}

// Observe implements MetricsRecorder.
func (NoopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// ObserveConflict implements MetricsRecorder.
func (NoopMetricsRecorder) ObserveConflict(context.Context) {}

// PrometheusMetricsRecorder exports operation counters, latencies and
// revision conflicts.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	conflicts  prometheus.Counter
}

// NewPrometheusMetricsRecorder creates the collectors and registers them with
// reg. A nil registerer leaves them unregistered.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabincore",
			Name:      "operations_total",
			Help:      "Service operations by name and result.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cabincore",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency including document round trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cabincore",
			Name:      "document_conflicts_total",
			Help:      "Conditional document writes rejected because of a newer revision.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.operations, r.latency, r.conflicts} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveConflict implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) ObserveConflict(context.Context) {
	r.conflicts.Inc()
}
