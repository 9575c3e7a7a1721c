package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// updatesTotal counts processed updates by outcome (ok, fallback)
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statuscast_updates_total",
		Help: "Status updates processed, by outcome",
	}, []string{"result"})

	// fallbacksTotal counts fallback snapshots by failure kind
	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statuscast_fallbacks_total",
		Help: "Fallback snapshots produced, by failure kind",
	}, []string{"kind"})

	contextUnavailableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statuscast_context_unavailable_total",
		Help: "Updates processed without prior context because it could not be read",
	})

	persistenceFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statuscast_persistence_failures_total",
		Help: "Updates whose entry could not be stored",
	})

	// completionDuration tracks LLM latency by outcome
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statuscast_completion_duration_seconds",
		Help:    "Completion call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1m
	}, []string{"result"})
)
