package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports dispatch counts and latencies.
type PrometheusMetricsRecorder struct {
	dispatched *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the dispatch collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitycache",
			Name:      "dispatch_total",
			Help:      "Actions dispatched to the entity cache, by action type and outcome.",
		}, []string{"action", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "entitycache",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent reducing an action.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"action"}),
	}
	for _, c := range []prometheus.Collector{r.dispatched, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
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
	r.dispatched.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}
