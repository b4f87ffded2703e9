package gate

import "github.com/danielpatrickdp/scenegen/internal/logging"

// #region veto-type
// VetoType enumerates discard categories.
type VetoType string

const (
	VetoEmptyArtifact VetoType = "empty_artifact"
	VetoUnplaced      VetoType = "unplaced_objects"
	VetoExhausted     VetoType = "bound_exhausted"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected discard condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region subject
// Subject is the part of a stage record the gate looks at.
type Subject struct {
	Stage        string
	RecordID     int
	Passed       bool
	FailedRounds int
	Bound        int
	Empty        bool // no artifact survived
	Unplaced     int  // objects left without a position
	Overlaps     int  // object pairs closer than the minimum separation
}

// #endregion subject

// #region gate-config
// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	MaxFailedRounds  int  // flag records that needed more failed rounds than this
	DiscardExhausted bool // strict mode: an exhausted bound discards instead of flags
	FlagOverlaps     bool // flag placements with close object pairs
}

// DefaultGateConfig keeps every non-empty record and flags exhausted ones.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxFailedRounds: 2,
		FlagOverlaps:    true,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      logging.Decision
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	Score       float32      // 0-1, share of the bound left unused (for logging)
}

// #endregion gate-decision
