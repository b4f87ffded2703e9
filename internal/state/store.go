package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	parent_run_id TEXT,
	command       TEXT NOT NULL,
	config_json   TEXT,
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	summary_json  TEXT,
	FOREIGN KEY (parent_run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS stage_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	stage         TEXT NOT NULL,
	record_id     INTEGER NOT NULL,
	ref_id        INTEGER,
	passed        INTEGER NOT NULL DEFAULT 0,
	failed_rounds INTEGER NOT NULL DEFAULT 0,
	payload       TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (run_id, stage, record_id),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	stage         TEXT NOT NULL,
	record_id     INTEGER NOT NULL,
	trigger_type  TEXT NOT NULL,
	evidence_refs TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`
// #endregion schema

// #region store-struct
// Store keeps runs, stage records and decisions in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging,
// orchestrator attempt memory).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region begin-run
// BeginRun registers a running invocation and returns it with a fresh
// sortable id.
func (s *Store) BeginRun(command, parentRunID, configJSON string) (RunRecord, error) {
	rec := RunRecord{
		RunID:       ulid.Make().String(),
		ParentRunID: parentRunID,
		Command:     command,
		ConfigJSON:  configJSON,
		Status:      RunRunning,
		StartedAt:   time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, parent_run_id, command, config_json, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, nullIfEmpty(parentRunID), command, nullIfEmpty(configJSON),
		string(rec.Status), rec.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}
// #endregion begin-run

// #region finish-run
// FinishRun closes a run with its final status and summary.
func (s *Store) FinishRun(runID string, status RunStatus, summaryJSON string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ?, summary_json = ? WHERE run_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), nullIfEmpty(summaryJSON), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}
// #endregion finish-run

// #region get-run
const runColumns = `run_id, parent_run_id, command, config_json, status, started_at, finished_at, summary_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var parent, cfg, finished, summary sql.NullString
	var status, started string
	if err := row.Scan(&rec.RunID, &parent, &rec.Command, &cfg, &status, &started, &finished, &summary); err != nil {
		return RunRecord{}, err
	}
	rec.ParentRunID = parent.String
	rec.ConfigJSON = cfg.String
	rec.Status = RunStatus(status)
	rec.SummaryJSON = summary.String
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return rec, nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY run_id DESC LIMIT 1`))
	if err != nil {
		return RunRecord{}, fmt.Errorf("latest run: %w", err)
	}
	return rec, nil
}
// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion list-runs

// #region put-record
// PutRecord stores a stage record, replacing an earlier copy of the same
// (run, stage, id).
func (s *Store) PutRecord(rec StageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO stage_records (run_id, stage, record_id, ref_id, passed, failed_rounds, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, stage, record_id) DO UPDATE SET
		   ref_id = excluded.ref_id, passed = excluded.passed,
		   failed_rounds = excluded.failed_rounds, payload = excluded.payload`,
		rec.RunID, rec.Stage, rec.RecordID, rec.RefID, boolInt(rec.Passed), rec.FailedRounds,
		rec.Payload, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}
// #endregion put-record

// #region list-records
// Records lists the records of one stage of a run, by record id. A negative
// limit lists them all.
func (s *Store) Records(runID, stage string, limit int) ([]RecordWithProvenance, error) {
	rows, err := s.db.Query(
		`SELECT r.run_id, r.stage, r.record_id, r.ref_id, r.passed, r.failed_rounds, r.payload, r.created_at,
		        p.decision, p.reason
		 FROM stage_records r
		 LEFT JOIN provenance_log p ON p.id = (
		   SELECT MAX(id) FROM provenance_log
		   WHERE run_id = r.run_id AND stage = r.stage AND record_id = r.record_id)
		 WHERE r.run_id = ? AND r.stage = ?
		 ORDER BY r.record_id LIMIT ?`,
		runID, stage, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []RecordWithProvenance
	for rows.Next() {
		var rec RecordWithProvenance
		var ref sql.NullInt64
		var passed int
		var created string
		var decision, reason sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Stage, &rec.RecordID, &ref, &passed, &rec.FailedRounds,
			&rec.Payload, &created, &decision, &reason); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.RefID = int(ref.Int64)
		rec.Passed = passed != 0
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.Decision = decision.String
		rec.Reason = reason.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StageCounts aggregates the records of a run per stage.
func (s *Store) StageCounts(runID string) ([]StageCount, error) {
	rows, err := s.db.Query(
		`SELECT stage, COUNT(*), SUM(passed), AVG(failed_rounds)
		 FROM stage_records WHERE run_id = ? GROUP BY stage ORDER BY stage`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("stage counts: %w", err)
	}
	defer rows.Close()

	var out []StageCount
	for rows.Next() {
		var c StageCount
		if err := rows.Scan(&c.Stage, &c.Records, &c.Passed, &c.MeanFailedRounds); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
// #endregion list-records

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers
