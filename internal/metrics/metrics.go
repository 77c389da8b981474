package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_turns_total",
			Help: "Conversation turns by the branch the router selected",
		},
		[]string{"route"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medassist_turn_duration_seconds",
			Help:    "End-to-end pipeline duration per turn",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)

	ModelFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_model_failures_total",
			Help: "Model calls that failed or returned undecodable output",
		},
		[]string{"kind"},
	)

	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_summaries_total",
			Help: "Rolling summary regenerations by outcome",
		},
		[]string{"outcome"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_tool_calls_total",
			Help: "Tool server calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	RetrievalLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "medassist_retrieval_latency_seconds",
			Help: "Retrieval index query latency",
		},
	)
)
