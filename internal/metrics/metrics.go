// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concord_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"kind"}, // kind: consensus, council
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concord_cache_misses_total",
			Help: "Total number of result cache misses",
		},
		[]string{"kind", "reason"}, // reason: absent, expired, invalid
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concord_cache_evictions_total",
			Help: "Total number of cache entries removed",
		},
		[]string{"reason"}, // reason: expired, invalid, invalidated, cleared, version
	)

	// Agent metrics
	AgentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concord_agent_calls_total",
			Help: "Total number of agent invocations",
		},
		[]string{"agent", "status"}, // status: success, error
	)

	AgentLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concord_agent_latency_seconds",
			Help:    "Agent invocation latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	AgentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concord_agent_errors_total",
			Help: "Agent failures by error category and decision",
		},
		[]string{"category", "action"},
	)

	// Validation metrics
	CitationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concord_citations_dropped_total",
			Help: "Citations rejected by the citation validator",
		},
		[]string{"reason"}, // reason: span, text, fact
	)

	ValidationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concord_validation_confidence",
			Help:    "Distribution of validation confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	Discrepancies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concord_discrepancies_total",
			Help: "Total number of discrepancies detected",
		},
	)

	ConsensusFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concord_consensus_failures_total",
			Help: "Consensus failures by reason and resolved action",
		},
		[]string{"reason", "action"},
	)
)
