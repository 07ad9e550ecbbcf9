package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the job-card lifecycle.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	AICallDuration *prometheus.HistogramVec
	AICallFailures *prometheus.CounterVec
	Invoices       *prometheus.CounterVec
	Assignments    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer in production
// and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Job card transitions by name and outcome",
		}, []string{"transition", "outcome"}),
		AICallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_call_duration_seconds",
			Help:      "Latency of AI capability calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"capability"}),
		AICallFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_call_failures_total",
			Help:      "Failed AI capability attempts",
		}, []string{"capability", "reason"}),
		Invoices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_total",
			Help:      "Invoices generated, split by hold-for-review",
		}, []string{"hold"}),
		Assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Technician assignments by match kind",
		}, []string{"match"}),
	}
}
