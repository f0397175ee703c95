package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source fetch metrics
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_fetch_attempts_total",
			Help: "Upstream fetch attempts per source",
		}, []string{"source"})
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_fetch_failures_total",
			Help: "Upstream fetch failures per source",
		}, []string{"source"})
	FallbackExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_fallback_exhausted_total",
			Help: "Rounds where every live source failed and the reference dataset was served",
		})

	// Refresh pipeline metrics
	RefreshRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_refresh_rounds_total",
			Help: "Completed refresh rounds",
		})
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketdata_refresh_duration_seconds",
			Help:    "Time to complete one refresh round",
			Buckets: prometheus.DefBuckets,
		})

	// History synthesis metrics
	SynthesisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_history_synthesis_total",
			Help: "History series generated per timeframe",
		}, []string{"timeframe"})
	SynthesisRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_history_synthesis_rejected_total",
			Help: "Synthesis requests rejected for invalid quotes",
		})
)
