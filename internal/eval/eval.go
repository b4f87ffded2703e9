// Package eval aggregates the stage records of a batch into pass rates and
// retry statistics.
package eval

import (
	"fmt"
)

// #region eval-harness
// EvalHarness scores a finished batch.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run computes the batch metrics. An empty batch passes vacuously.
func (h *EvalHarness) Run(b Batch) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	check := func(name string, value float32, ok bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: ok})
		if !ok {
			passed = false
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Pass rates
	pPass, pRounds := placementStats(b)
	sPass, sRounds := scriptStats(b)
	check("placement_pass_rate", pPass, pPass >= h.config.MinPlacementPassRate,
		fmt.Sprintf("placement pass rate %.4f below %.4f", pPass, h.config.MinPlacementPassRate))
	check("script_pass_rate", sPass, sPass >= h.config.MinScriptPassRate,
		fmt.Sprintf("script pass rate %.4f below %.4f", sPass, h.config.MinScriptPassRate))

	// 2. Mean failed rounds
	check("placement_mean_failed_rounds", pRounds, pRounds <= h.config.MaxMeanFailedRounds,
		fmt.Sprintf("placement mean failed rounds %.4f exceeds %.4f", pRounds, h.config.MaxMeanFailedRounds))
	check("script_mean_failed_rounds", sRounds, sRounds <= h.config.MaxMeanFailedRounds,
		fmt.Sprintf("script mean failed rounds %.4f exceeds %.4f", sRounds, h.config.MaxMeanFailedRounds))

	// 3. Informational, never blocking
	metrics = append(metrics,
		EvalMetric{Name: "conflict_rate", Value: conflictRate(b), Pass: true},
		EvalMetric{Name: "skipped", Value: float32(b.Skipped), Pass: true},
	)

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func placementStats(b Batch) (passRate, meanRounds float32) {
	if len(b.Placements) == 0 {
		return 1, 0
	}
	var pass, rounds int
	for _, p := range b.Placements {
		if p.Passed {
			pass++
		}
		rounds += p.FailedRounds
	}
	n := float32(len(b.Placements))
	return float32(pass) / n, float32(rounds) / n
}

func scriptStats(b Batch) (passRate, meanRounds float32) {
	if len(b.Scripts) == 0 {
		return 1, 0
	}
	var pass, rounds int
	for _, s := range b.Scripts {
		if s.Passed {
			pass++
		}
		rounds += s.FailedRounds
	}
	n := float32(len(b.Scripts))
	return float32(pass) / n, float32(rounds) / n
}

// conflictRate is the share of conflict checks that reported a conflict.
func conflictRate(b Batch) float32 {
	if len(b.Checks) == 0 {
		return 0
	}
	var hits int
	for _, c := range b.Checks {
		if c.ShouldFilter {
			hits++
		}
	}
	return float32(hits) / float32(len(b.Checks))
}

// #endregion helpers
