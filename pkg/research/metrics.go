package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deep_search",
		Name:      "invocations_total",
		Help:      "Research invocations by final status",
	}, []string{"status"})

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deep_search",
		Name:      "terminations_total",
		Help:      "Finished research loops by termination reason",
	}, []string{"reason"})

	roundsPerInvocation = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "deep_search",
		Name:      "rounds_per_invocation",
		Help:      "Completed research rounds per invocation",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 7, 10},
	})

	searchCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deep_search",
		Name:      "search_calls_total",
		Help:      "Search calls by outcome",
	}, []string{"outcome"})

	llmFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deep_search",
		Name:      "llm_failures_total",
		Help:      "Absorbed or fatal LLM call failures by step",
	}, []string{"step"})

	invocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "deep_search",
		Name:      "invocation_duration_seconds",
		Help:      "Wall time of research invocations",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
