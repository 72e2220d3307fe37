package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// External capability calls (language model and web search)
	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_external_calls_total",
			Help: "Total number of language model and web search calls",
		},
		[]string{"capability", "outcome"},
	)

	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_research_external_call_duration_seconds",
			Help:    "Duration of language model and web search calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"capability"},
	)

	// Orchestration metrics
	Branches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_branches_total",
			Help: "Total number of research branches by outcome",
		},
		[]string{"outcome"},
	)

	Learnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_learnings_total",
			Help: "Total number of learnings extracted before deduplication",
		},
	)

	// Server metrics
	Jobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_jobs_total",
			Help: "Total number of research jobs by final status",
		},
		[]string{"status"},
	)
)

// Outcome labels shared by the counters above.
const (
	OutcomeSuccess   = "success"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeEmpty     = "empty"
)
