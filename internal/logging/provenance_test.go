package logging

import (
	"database/sql"
	"testing"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE provenance_log (
		run_id        TEXT NOT NULL,
		stage         TEXT NOT NULL,
		record_id     INTEGER NOT NULL,
		trigger_type  TEXT NOT NULL,
		evidence_refs TEXT,
		decision      TEXT NOT NULL,
		reason        TEXT,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region new-tests
func TestNew_Levels(t *testing.T) {
	for _, json := range []bool{true, false} {
		l, err := New("debug", json)
		if err != nil {
			t.Fatalf("New(debug, %v): %v", json, err)
		}
		if !l.Core().Enabled(zap.DebugLevel) {
			t.Errorf("expected debug enabled (json=%v)", json)
		}
	}

	l, err := New("warn", true)
	if err != nil {
		t.Fatalf("New(warn): %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Error("expected info disabled at warn level")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New("loud", true); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

// #endregion new-tests

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:        "01J0000000000000000000000A",
		Stage:        "assign_placement",
		RecordID:     12,
		TriggerType:  "gate",
		EvidenceRefs: "check_positional_error:40,41",
		Decision:     DecisionFlag,
		Reason:       "exhausted 5 rounds",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var stage, decision string
	var recordID int
	db.QueryRow("SELECT stage, record_id, decision FROM provenance_log").Scan(&stage, &recordID, &decision)
	if stage != "assign_placement" || recordID != 12 {
		t.Errorf("unexpected key (%s, %d)", stage, recordID)
	}
	if decision != "flag" {
		t.Errorf("expected decision 'flag', got %q", decision)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogDecision(db, ProvenanceEntry{RunID: "r", Stage: "augment", TriggerType: "dedup", Decision: DecisionDiscard}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM provenance_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Errorf("created_at %v before %v", createdAt, before)
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogDecision(db, ProvenanceEntry{RunID: "r", Stage: "generate_code", TriggerType: "gate", Decision: DecisionKeep}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var evidenceRefs, reason sql.NullString
	db.QueryRow("SELECT evidence_refs, reason FROM provenance_log").Scan(&evidenceRefs, &reason)
	if evidenceRefs.Valid {
		t.Error("expected NULL evidence_refs for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close()

	if err := LogDecision(db, ProvenanceEntry{RunID: "r", TriggerType: "gate", Decision: DecisionKeep}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region null-if-empty-tests
func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nullIfEmpty("hello") != "hello" {
		t.Error("expected passthrough for non-empty string")
	}
}

// #endregion null-if-empty-tests
