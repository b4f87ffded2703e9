package eval

import (
	"strings"
	"testing"

	"github.com/danielpatrickdp/scenegen/internal/records"
)

func cleanBatch() Batch {
	return Batch{
		Placements: []records.AssignPlacement{
			{ID: 1, Passed: true},
			{ID: 2, Passed: true, FailedRounds: 1},
		},
		Scripts: []records.GenerateCode{
			{ID: 1, Passed: true},
			{ID: 2, Passed: true},
		},
		Checks: []records.CheckPositionalError{
			{ShouldFilter: true}, {}, {},
		},
	}
}

func metric(t *testing.T, r EvalResult, name string) EvalMetric {
	t.Helper()
	m, ok := r.Metric(name)
	if !ok {
		t.Fatalf("missing metric %s", name)
	}
	return m
}

func TestEvalPassesOnCleanBatch(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())

	result := h.Run(cleanBatch())

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if got := metric(t, result, "placement_mean_failed_rounds").Value; got != 0.5 {
		t.Fatalf("expected mean 0.5, got %f", got)
	}
	if got := metric(t, result, "conflict_rate").Value; got < 0.33 || got > 0.34 {
		t.Fatalf("expected conflict rate 1/3, got %f", got)
	}
}

func TestEvalEmptyBatchPasses(t *testing.T) {
	result := NewEvalHarness(DefaultEvalConfig()).Run(Batch{})

	if !result.Passed {
		t.Fatalf("expected vacuous pass, got %s", result.Reason)
	}
	if len(result.Metrics) != 6 {
		t.Fatalf("expected 6 metrics, got %d", len(result.Metrics))
	}
}

func TestEvalFailsOnPlacementPassRate(t *testing.T) {
	b := cleanBatch()
	b.Placements[0].Passed = false
	b.Placements[0].FailedRounds = 5
	b.Placements[1].Passed = false
	b.Placements[1].FailedRounds = 5

	result := NewEvalHarness(DefaultEvalConfig()).Run(b)

	if result.Passed {
		t.Fatal("expected fail on placement pass rate")
	}
	if !strings.Contains(result.Reason, "2 checks") {
		t.Fatalf("expected two failed checks, got %q", result.Reason)
	}
	if metric(t, result, "placement_pass_rate").Pass {
		t.Fatal("placement_pass_rate should fail")
	}
}

func TestEvalFailsOnScriptPassRate(t *testing.T) {
	b := cleanBatch()
	b.Scripts[1].Passed = false

	result := NewEvalHarness(DefaultEvalConfig()).Run(b)

	if result.Passed {
		t.Fatal("expected fail on script pass rate")
	}
	if !strings.Contains(result.Reason, "script pass rate") {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestEvalSkippedIsInformational(t *testing.T) {
	b := cleanBatch()
	b.Skipped = 40

	result := NewEvalHarness(DefaultEvalConfig()).Run(b)

	if !result.Passed {
		t.Fatalf("skipped must not fail the batch: %s", result.Reason)
	}
	if got := metric(t, result, "skipped").Value; got != 40 {
		t.Fatalf("expected 40 skipped, got %f", got)
	}
}
