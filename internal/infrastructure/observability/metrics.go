package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Rotation outcomes: rotated, reuse_detected, expired, not_found, error.
	TokenRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_rotations_total",
			Help: "Total number of refresh token rotation attempts by outcome",
		},
		[]string{"outcome"},
	)

	CSRFDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_gate_decisions_total",
			Help: "Total number of CSRF gate decisions",
		},
		[]string{"decision"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(RepositoryCalls, RepositoryDuration, TokenRotations, CSRFDecisions)
}
