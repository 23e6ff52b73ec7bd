// Package metrics provides Prometheus metrics for the attribute platform.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the platform's Prometheus collectors.
type Metrics struct {
	Validations        prometheus.Counter
	ValidationFailures prometheus.Counter
	IndexUpserts       prometheus.Counter
	Queries            prometheus.Counter
	ReindexRuns        *prometheus.CounterVec
	ValidateDuration   prometheus.Histogram
	QueryDuration      prometheus.Histogram
}

// New creates the metrics and registers them with reg. Pass a fresh
// registry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Validations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attrix_validations_total",
			Help: "Total number of attribute validations",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attrix_validation_failures_total",
			Help: "Total number of validations that returned violations",
		}),
		IndexUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attrix_index_upserts_total",
			Help: "Total number of secondary index upserts",
		}),
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attrix_index_queries_total",
			Help: "Total number of secondary index queries",
		}),
		ReindexRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attrix_reindex_runs_total",
			Help: "Total number of reindex runs by outcome",
		}, []string{"outcome"}),
		ValidateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attrix_validate_duration_seconds",
			Help:    "Duration of validate-and-index calls",
			Buckets: prometheus.DefBuckets,
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attrix_query_duration_seconds",
			Help:    "Duration of index queries",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Validations, m.ValidationFailures, m.IndexUpserts, m.Queries,
			m.ReindexRuns, m.ValidateDuration, m.QueryDuration,
		)
	}
	return m
}
