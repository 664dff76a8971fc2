// Package telemetry registers the Prometheus metrics for the query path,
// served on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts answered queries by endpoint and disposition
	// tier.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopdesk_queries_total",
		Help: "Answered queries by endpoint and tier.",
	}, []string{"endpoint", "tier"})

	// GenerationFallbacks counts queries answered with the fixed fallback
	// text because the generation backend failed or was absent.
	GenerationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sopdesk_generation_fallbacks_total",
		Help: "Queries that degraded to the fixed fallback answer.",
	})

	// EvidenceRetrieved observes how many evidence rows retrieval
	// produced per query.
	EvidenceRetrieved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sopdesk_retrieval_evidence_count",
		Help:    "Evidence rows returned per query.",
		Buckets: prometheus.LinearBuckets(0, 1, 8),
	})

	// QueryDuration observes end-to-end query latency in seconds.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sopdesk_query_duration_seconds",
		Help:    "End-to-end query latency.",
		Buckets: prometheus.DefBuckets,
	})
)
