// Package orchestrator runs oracle-driven stages through a bounded
// regenerate-with-feedback cycle.
package orchestrator

// #region imports
import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/metrics"
)

// #endregion

// #region orchestrator-struct

// Orchestrator carries what every stage run shares: round bounds, the
// attempt store and the logger.
type Orchestrator struct {
	bounds Bounds
	memory *AttemptMemory
	logger *zap.Logger
}

// #endregion

// #region constructor

// NewOrchestrator wires an orchestrator. db may be nil to skip persisting
// attempts. bounds may be nil for the built-in table.
func NewOrchestrator(db *sql.DB, bounds Bounds, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{bounds: bounds, logger: logger.Named("orch")}
	if db != nil {
		mem, err := NewAttemptMemory(db)
		if err != nil {
			return nil, err
		}
		o.memory = mem
	}
	return o, nil
}

// Memory returns the attempt store, nil when not persisting.
func (o *Orchestrator) Memory() *AttemptMemory {
	return o.memory
}

// Bound returns the configured bound for stage.
func (o *Orchestrator) Bound(stage string) int {
	return o.bounds.For(stage)
}

// #endregion

// #region finish-round

// finish records a round: metrics, persistence and the stage observer.
func (o *Orchestrator) finish(stage string, sessionID string, round roundSummary, observe func()) {
	if round.failed {
		metrics.RetryRounds.WithLabelValues(stage).Inc()
	}
	if o.memory != nil {
		rec := AttemptRecord{
			SessionID:   sessionID,
			Stage:       stage,
			Round:       round.number,
			Violated:    round.violated,
			Malformed:   round.malformed,
			Reasons:     round.reasons,
			IsLastRound: round.last,
			CreatedAt:   time.Now(),
		}
		if err := o.memory.RecordAttempt(rec); err != nil {
			o.logger.Warn("failed to record attempt", zap.String("stage", stage), zap.Error(err))
		}
	}
	if observe != nil {
		observe()
	}
}

type roundSummary struct {
	number    int
	violated  bool
	malformed bool
	failed    bool
	last      bool
	reasons   []string
}

func summarize[T any](r *Round[T]) roundSummary {
	s := roundSummary{
		number:    r.Number,
		violated:  r.Verdict.Violated,
		malformed: r.Err != nil,
		last:      r.Last,
		reasons:   r.Verdict.Reasons,
	}
	if r.Err != nil {
		s.reasons = []string{r.Err.Error()}
	}
	s.failed = s.violated || s.malformed
	return s
}

// #endregion
