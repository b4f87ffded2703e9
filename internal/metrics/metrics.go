// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region collectors

var (
	// OracleCalls counts oracle completions by backend and outcome
	// ("stop", "abnormal", "error").
	OracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenegen_oracle_calls_total",
		Help: "Oracle completion attempts by backend and outcome",
	}, []string{"backend", "outcome"})

	// OracleLatency observes wall time per completion attempt.
	OracleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scenegen_oracle_latency_seconds",
		Help:    "Oracle completion latency",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"backend"})

	// RetryRounds counts failed validation rounds per stage.
	RetryRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenegen_failed_rounds_total",
		Help: "Failed validation rounds by pipeline stage",
	}, []string{"stage"})

	// StageOutcomes counts finished stage runs by outcome ("passed", "exhausted").
	StageOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenegen_stage_outcomes_total",
		Help: "Stage results by pipeline stage and outcome",
	}, []string{"stage", "outcome"})

	// ConflictNonConforming counts conflict checks that fell back to "no violation".
	ConflictNonConforming = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegen_conflict_check_fail_open_total",
		Help: "Conflict checks that never produced a conforming verdict",
	})

	// DuplicateRejections counts candidates refused by the signature index.
	DuplicateRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegen_duplicate_rejections_total",
		Help: "Descriptions refused as near duplicates",
	})
)

// #endregion collectors
