// Package replay runs recorded oracle transcripts through the pipeline,
// gate and eval without a live oracle.
package replay

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/scenegen/internal/eval"
	"github.com/danielpatrickdp/scenegen/internal/gate"
	"github.com/danielpatrickdp/scenegen/internal/logging"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/pipeline"
	"github.com/danielpatrickdp/scenegen/internal/records"
)

// ActionSkipped marks a scene dropped on a soft failure.
const ActionSkipped = "skipped"

// #region types

// ReplayConfig bundles pipeline, gate, and eval configs for a replay run.
type ReplayConfig struct {
	Options    pipeline.Options
	Bounds     orchestrator.Bounds
	GateConfig gate.GateConfig
	EvalConfig eval.EvalConfig
}

// DefaultReplayConfig returns the defaults for all three stages.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		GateConfig: gate.DefaultGateConfig(),
		EvalConfig: eval.DefaultEvalConfig(),
	}
}

// ReplayResult captures the outcome of replaying one scene.
type ReplayResult struct {
	ID     int
	Action string // "keep" | "flag" | "discard" | "skipped"
	Reason string

	// Nil when the scene was skipped.
	Scene             *pipeline.Scene
	PlacementDecision *gate.GateDecision
	CodeDecision      *gate.GateDecision
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalScenes int
	Keeps       int
	Flags       int
	Discards    int
	Skipped     int
	Eval        eval.EvalResult
}

// #endregion types

// #region replay

// Replay processes scenes in order against router, then gates each scene's
// placement and script. Only hard failures are returned as errors.
func Replay(ctx context.Context, router oracle.Router, scenes []records.Description, config ReplayConfig) ([]ReplayResult, error) {
	orch, err := orchestrator.NewOrchestrator(nil, config.Bounds, nil)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(router, orch, config.Options, nil)
	g := gate.NewGate(config.GateConfig)

	results := make([]ReplayResult, 0, len(scenes))
	for _, d := range scenes {
		sc, err := p.Process(ctx, d)
		if err != nil {
			if !orchestrator.IsSoft(err) {
				return results, fmt.Errorf("replay scene %d: %w", d.ID, err)
			}
			results = append(results, ReplayResult{ID: d.ID, Action: ActionSkipped, Reason: err.Error()})
			continue
		}

		pd := g.Evaluate(gate.FromPlacement(sc.Placement.Record, orch.Bound(orchestrator.StageAssignPlacement)))
		cd := g.Evaluate(gate.FromCode(sc.Code, orch.Bound(orchestrator.StageGenerateCode)))
		worst := pd
		if rank(cd.Action) > rank(pd.Action) {
			worst = cd
		}
		results = append(results, ReplayResult{
			ID:                d.ID,
			Action:            string(worst.Action),
			Reason:            worst.Reason,
			Scene:             &sc,
			PlacementDecision: &pd,
			CodeDecision:      &cd,
		})
	}
	return results, nil
}

// Summarize computes aggregate stats and the batch evaluation.
func Summarize(results []ReplayResult, config eval.EvalConfig) ReplaySummary {
	s := ReplaySummary{TotalScenes: len(results)}
	var b eval.Batch
	for _, r := range results {
		switch r.Action {
		case string(logging.DecisionKeep):
			s.Keeps++
		case string(logging.DecisionFlag):
			s.Flags++
		case string(logging.DecisionDiscard):
			s.Discards++
		case ActionSkipped:
			s.Skipped++
		}
		if r.Scene != nil {
			b.Placements = append(b.Placements, r.Scene.Placement.Record)
			b.Checks = append(b.Checks, r.Scene.Placement.Checks...)
			b.Scripts = append(b.Scripts, r.Scene.Code)
		}
	}
	b.Skipped = s.Skipped
	s.Eval = eval.NewEvalHarness(config).Run(b)
	return s
}

func rank(d logging.Decision) int {
	switch d {
	case logging.DecisionDiscard:
		return 2
	case logging.DecisionFlag:
		return 1
	}
	return 0
}

// #endregion replay
