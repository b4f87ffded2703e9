package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/placement"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/respparse"
	"github.com/danielpatrickdp/scenegen/internal/validate"
)

// #region candidate

// Candidate is one round's merged placement.
type Candidate struct {
	Entries []placement.Entry
	// Filled names were placed locally because no source positioned them.
	Filled   []string
	Unplaced []string
	// DroppedGuarding names extra Guarding objects; only the first is kept.
	DroppedGuarding []string
}

// PlacementResult is the final placement plus the audit trail of every
// conflict check and every feedback round. Check and fix ids are left zero
// for the caller to number.
type PlacementResult struct {
	Record records.AssignPlacement
	Checks []records.CheckPositionalError
	Fixes  []records.FixPositionalError
}

func toEntries(ps []respparse.PositionEntry) []placement.Entry {
	out := make([]placement.Entry, len(ps))
	for i, e := range ps {
		out[i] = placement.Entry{Name: e.Name, Position: string(e.Position), Orientation: string(e.Orientation)}
	}
	return out
}

// #endregion

// #region resolve

// resolver merges the known positions with both oracle position lists and
// places whatever is still missing.
type resolver struct {
	known   []placement.Entry
	objects []string
	rng     placement.Range
}

func newResolver(el records.ExtractLayout, rng placement.Range) (resolver, error) {
	known, err := respparse.DecodePositions(el.Coordinates)
	if err != nil {
		return resolver{}, fmt.Errorf("known positions: %w", err)
	}
	var objects []string
	if err := json.Unmarshal([]byte(respparse.CleanJSON(el.Objects)), &objects); err != nil {
		return resolver{}, fmt.Errorf("objects: %w", err)
	}
	var permitted []string
	for _, o := range objects {
		if catalog.Permitted(o) {
			permitted = append(permitted, o)
		}
	}
	return resolver{known: toEntries(known), objects: permitted, rng: rng}, nil
}

// parse accepts an assign-placement reply only when both position lists
// decode.
func (r resolver) parse(reply string) (Candidate, error) {
	parsed, err := respparse.AssignPlacement.Parse(reply)
	if err != nil {
		return Candidate{}, err
	}
	computed, err := parsed.Positions(0)
	if err != nil {
		return Candidate{}, &respparse.FormatError{Section: "Calculate Coordinates", Reason: err.Error()}
	}
	assigned, err := parsed.Positions(1)
	if err != nil {
		return Candidate{}, &respparse.FormatError{Section: "Assign Coordinates", Reason: err.Error()}
	}
	return r.resolve(toEntries(computed), toEntries(assigned)), nil
}

func (r resolver) resolve(computed, assigned []placement.Entry) Candidate {
	merged, dropped := placement.SingleGuarding(placement.Merge(catalog.Permitted, r.known, computed, assigned))
	filled, unplaced, skipped := placement.AssignMissing(r.objects, merged, r.rng)
	c := Candidate{Entries: append(merged, filled...), Unplaced: unplaced, DroppedGuarding: dropped}
	for _, e := range filled {
		c.Filled = append(c.Filled, e.Name)
	}
	for _, name := range skipped {
		if !slices.Contains(c.DroppedGuarding, name) {
			c.DroppedGuarding = append(c.DroppedGuarding, name)
		}
	}
	return c
}

// #endregion

// #region assign-placement

// AssignPlacement resolves every object of el to a position and has the
// oracle audit the result, feeding conflicts back for up to the stage
// bound. The last placement is returned even when it never passed.
func (p *Pipeline) AssignPlacement(ctx context.Context, el records.ExtractLayout) (PlacementResult, error) {
	res := PlacementResult{}
	r, err := newResolver(el, p.opts.Range)
	if err != nil {
		return res, &respparse.FormatError{Section: orchestrator.StageExtractLayout, Reason: err.Error()}
	}
	request := prompts.AssignPlacement(el.Prompt, el.Objects, el.Coordinates, el.Relations)
	log := p.logger.With(zap.Int("extract_layout_id", el.ID))

	stage := orchestrator.Stage[Candidate]{
		Name:    orchestrator.StageAssignPlacement,
		Request: request,
		History: orchestrator.ResetToLast,
		Generate: orchestrator.Generator(
			p.router.For(orchestrator.StageAssignPlacement),
			p.router.For(orchestrator.StageFixPlacement),
			p.opts.ParseBound, r.parse),
		Validate: func(ctx context.Context, c Candidate) (validate.Verdict, error) {
			cr, err := p.conflict.CheckPlacement(ctx, el.Prompt, c.Entries)
			if err != nil {
				return validate.Verdict{}, err
			}
			res.Checks = append(res.Checks, records.CheckPositionalError{
				ExtractLayoutID: el.ID,
				Prompt:          el.Prompt,
				Coords:          c.Entries,
				ModelInput:      cr.Input,
				ModelOutput:     cr.Output,
				ShouldFilter:    cr.Verdict.Violated,
				FilterReason:    cr.Analysis,
				Conforming:      cr.Conforming,
			})
			return cr.Verdict, nil
		},
		Echo: func(c Candidate, _ string) string {
			b, err := json.MarshalIndent(c.Entries, "", "  ")
			if err != nil {
				return ""
			}
			return string(b)
		},
		Feedback: prompts.PlacementFeedback,
		OnRound: func(rd orchestrator.Round[Candidate]) {
			if rd.Err != nil || len(rd.Messages) < 2 {
				return
			}
			res.Fixes = append(res.Fixes, records.FixPositionalError{
				ExtractLayoutID: el.ID,
				ModelInput:      rd.Messages,
				ModelOutput:     rd.Reply,
				IsLastRound:     !rd.Verdict.Violated,
			})
		},
	}

	out, err := orchestrator.Run(ctx, p.orch, stage)
	if err != nil {
		return res, err
	}
	if out.Rounds > 0 && out.Reply == "" {
		// Every round was malformed; there is no placement to store.
		return res, fmt.Errorf("%s: %w", orchestrator.StageAssignPlacement, orchestrator.ErrParseExhausted)
	}

	final := out.Artifact
	if len(final.Filled) > 0 {
		log.Info("placed objects locally", zap.Strings("names", final.Filled))
	}
	if len(final.DroppedGuarding) > 0 {
		log.Warn("dropped extra guarding", zap.Strings("names", final.DroppedGuarding))
	}
	overlaps := placement.Overlaps(final.Entries, placement.MinSeparation)
	if len(overlaps) > 0 {
		log.Debug("placement has close pairs", zap.Int("pairs", len(overlaps)))
	}
	res.Record = records.AssignPlacement{
		ID:              el.ID,
		ExtractLayoutID: el.ID,
		ModelInput:      request,
		ModelOutput:     out.Reply,
		CoordsFinal:     final.Entries,
		Unplaced:        final.Unplaced,
		DroppedGuarding: final.DroppedGuarding,
		Overlaps:        overlaps,
		FailedRounds:    out.FailedRounds,
		Passed:          out.Passed,
	}
	return res, nil
}

// #endregion
