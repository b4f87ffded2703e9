// Package gate decides whether a finished stage record is kept, flagged for
// review or discarded.
package gate

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/scenegen/internal/logging"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/records"
)

// #region gate
// Gate evaluates stage records against the configured thresholds.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks discard conditions first, then flag conditions.
func (g *Gate) Evaluate(s Subject) GateDecision {
	var vetoes []VetoSignal

	// --- Discard pass ---

	if s.Empty {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEmptyArtifact,
			Reason: "no artifact survived sanitizing",
		})
	}
	if s.Unplaced > 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoUnplaced,
			Reason: fmt.Sprintf("%d objects have no position", s.Unplaced),
		})
	}
	if !s.Passed && g.config.DiscardExhausted {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoExhausted,
			Reason: fmt.Sprintf("bound of %d rounds exhausted", s.Bound),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      logging.DecisionDiscard,
			Reason:      fmt.Sprintf("discard: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
		}
	}

	// --- Flag pass ---
	score := computeScore(s)
	var flags []string
	if !s.Passed {
		flags = append(flags, "never validated")
	}
	if s.FailedRounds > g.config.MaxFailedRounds {
		flags = append(flags, fmt.Sprintf("%d failed rounds", s.FailedRounds))
	}
	if g.config.FlagOverlaps && s.Overlaps > 0 {
		flags = append(flags, fmt.Sprintf("%d close pairs", s.Overlaps))
	}
	if len(flags) > 0 {
		return GateDecision{
			Action: logging.DecisionFlag,
			Reason: "flag: " + strings.Join(flags, ", "),
			Score:  score,
		}
	}
	return GateDecision{
		Action: logging.DecisionKeep,
		Reason: fmt.Sprintf("passed gate: score=%.4f", score),
		Score:  score,
	}
}

// #endregion gate

// #region subjects
// FromPlacement builds the subject for a placement record.
func FromPlacement(rec records.AssignPlacement, bound int) Subject {
	return Subject{
		Stage:        orchestrator.StageAssignPlacement,
		RecordID:     rec.ID,
		Passed:       rec.Passed,
		FailedRounds: rec.FailedRounds,
		Bound:        bound,
		Empty:        len(rec.CoordsFinal) == 0,
		Unplaced:     len(rec.Unplaced),
		Overlaps:     len(rec.Overlaps),
	}
}

// FromCode builds the subject for a generated script.
func FromCode(rec records.GenerateCode, bound int) Subject {
	return Subject{
		Stage:        orchestrator.StageGenerateCode,
		RecordID:     rec.ID,
		Passed:       rec.Passed,
		FailedRounds: rec.FailedRounds,
		Bound:        bound,
		Empty:        rec.Code == "",
	}
}

// #endregion subjects

// #region record
// Record writes the decision to the provenance log.
func Record(db *sql.DB, runID string, s Subject, d GateDecision) error {
	var refs []string
	for _, v := range d.VetoSignals {
		refs = append(refs, string(v.Type))
	}
	return logging.LogDecision(db, logging.ProvenanceEntry{
		RunID:        runID,
		Stage:        s.Stage,
		RecordID:     s.RecordID,
		TriggerType:  "gate",
		EvidenceRefs: strings.Join(refs, ","),
		Decision:     d.Action,
		Reason:       d.Reason,
	})
}

// #endregion record

// #region helpers
// computeScore is the unused share of the bound: 1 for a first-round pass,
// 0 for an exhausted bound.
func computeScore(s Subject) float32 {
	if s.Bound <= 0 {
		if s.Passed {
			return 1
		}
		return 0
	}
	left := s.Bound - s.FailedRounds
	if left < 0 {
		left = 0
	}
	return float32(left) / float32(s.Bound)
}

// #endregion helpers
