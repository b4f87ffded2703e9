package orchestrator

// #region imports
import (
	"database/sql"
	"math"
	"strings"
	"time"
)

// #endregion

// #region schema

const stageAttemptsSchema = `
CREATE TABLE IF NOT EXISTS stage_attempts (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT NOT NULL,
    stage         TEXT NOT NULL,
    round         INTEGER NOT NULL,
    violated      INTEGER NOT NULL DEFAULT 0,
    malformed     INTEGER NOT NULL DEFAULT 0,
    reasons       TEXT NOT NULL DEFAULT '',
    is_last_round INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);
`

const stageAttemptsIndex = `
CREATE INDEX IF NOT EXISTS idx_stage_attempts_stage
ON stage_attempts(stage, created_at);
`

// #endregion

// #region memory-struct

// AttemptRecord is one persisted round.
type AttemptRecord struct {
	SessionID   string
	Stage       string
	Round       int
	Violated    bool
	Malformed   bool
	Reasons     []string
	IsLastRound bool
	CreatedAt   time.Time
}

// AttemptMemory persists stage rounds in SQLite.
type AttemptMemory struct {
	db *sql.DB
}

// NewAttemptMemory initializes the stage_attempts table.
func NewAttemptMemory(db *sql.DB) (*AttemptMemory, error) {
	if _, err := db.Exec(stageAttemptsSchema); err != nil {
		return nil, err
	}
	if _, err := db.Exec(stageAttemptsIndex); err != nil {
		return nil, err
	}
	return &AttemptMemory{db: db}, nil
}

// #endregion

// #region record-attempt

// RecordAttempt persists a single round.
func (m *AttemptMemory) RecordAttempt(rec AttemptRecord) error {
	_, err := m.db.Exec(`
		INSERT INTO stage_attempts
		(session_id, stage, round, violated, malformed, reasons, is_last_round, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.Stage,
		rec.Round,
		boolInt(rec.Violated),
		boolInt(rec.Malformed),
		strings.Join(rec.Reasons, "\n"),
		boolInt(rec.IsLastRound),
		rec.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion

// #region stage-stats

// StageStats summarizes persisted rounds of one stage.
type StageStats struct {
	Stage    string
	Sessions int
	Rounds   int
	Failed   int
	// FailureRate is decay-weighted so recent rounds dominate.
	FailureRate float64
}

// Stats aggregates rounds for stage. Rounds older than a week weigh half.
func (m *AttemptMemory) Stats(stage string) (StageStats, error) {
	rows, err := m.db.Query(`
		SELECT session_id, violated, malformed, created_at
		FROM stage_attempts
		WHERE stage = ?`,
		stage,
	)
	if err != nil {
		return StageStats{}, err
	}
	defer rows.Close()

	now := time.Now()
	halfLife := 7.0 * 24.0 // 7 days in hours
	stats := StageStats{Stage: stage}
	sessions := make(map[string]bool)
	var weightedFail, totalWeight float64

	for rows.Next() {
		var sid, createdAtStr string
		var violated, malformed int
		if err := rows.Scan(&sid, &violated, &malformed, &createdAtStr); err != nil {
			return StageStats{}, err
		}
		sessions[sid] = true
		stats.Rounds++
		failed := violated == 1 || malformed == 1
		if failed {
			stats.Failed++
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() * math.Ln2 / halfLife)
		totalWeight += weight
		if failed {
			weightedFail += weight
		}
	}
	if err := rows.Err(); err != nil {
		return StageStats{}, err
	}
	stats.Sessions = len(sessions)
	if totalWeight > 0 {
		stats.FailureRate = weightedFail / totalWeight
	}
	return stats, nil
}

// #endregion
