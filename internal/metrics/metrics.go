package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgfinder_queries_total",
			Help: "Total number of queries processed by outcome",
		},
		[]string{"outcome"},
	)

	RetrievalAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgfinder_retrieval_attempts_total",
			Help: "Total number of retrieval attempts by stage and result",
		},
		[]string{"stage", "result"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orgfinder_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"stage"},
	)

	GeocodeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgfinder_geocode_lookups_total",
			Help: "Total number of location lookups by answering source",
		},
		[]string{"source"},
	)

	MemoryDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgfinder_memory_decisions_total",
			Help: "Total number of memory decisions by rule kind",
		},
		[]string{"kind"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgfinder_llm_tokens_total",
			Help: "Total number of LLM tokens by direction",
		},
		[]string{"direction"},
	)

	ResponseModes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgfinder_responses_total",
			Help: "Total number of answers by response mode",
		},
		[]string{"mode"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orgfinder_active_sessions",
			Help: "Number of live query sessions",
		},
	)
)
