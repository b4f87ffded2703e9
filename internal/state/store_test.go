package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginAndFinishRun(t *testing.T) {
	s := tempDB(t)

	run, err := s.BeginRun("generate", "", `{"workers":2}`)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("expected non-empty run ID")
	}
	if run.Status != RunRunning {
		t.Fatalf("expected running, got %s", run.Status)
	}

	if err := s.FinishRun(run.RunID, RunFinished, `{"records":3}`); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err := s.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunFinished {
		t.Errorf("expected finished, got %s", got.Status)
	}
	if got.SummaryJSON != `{"records":3}` {
		t.Errorf("summary = %q", got.SummaryJSON)
	}
	if got.FinishedAt.IsZero() {
		t.Error("expected finished_at to be set")
	}
	if got.ConfigJSON != `{"workers":2}` {
		t.Errorf("config = %q", got.ConfigJSON)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	s := tempDB(t)
	if err := s.FinishRun("nope", RunFailed, ""); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestLatestAndListRuns(t *testing.T) {
	s := tempDB(t)
	first, _ := s.BeginRun("augment", "", "")
	second, err := s.BeginRun("generate", first.RunID, "")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	latest, err := s.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.RunID != second.RunID {
		t.Fatalf("expected %s, got %s", second.RunID, latest.RunID)
	}
	if latest.ParentRunID != first.RunID {
		t.Errorf("expected parent %s, got %s", first.RunID, latest.ParentRunID)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != second.RunID {
		t.Fatalf("unexpected run order: %+v", runs)
	}
}

func TestLatestRunEmpty(t *testing.T) {
	s := tempDB(t)
	if _, err := s.LatestRun(); err == nil {
		t.Fatal("expected error on empty store")
	}
}

func TestPutRecordUpsertAndCounts(t *testing.T) {
	s := tempDB(t)
	run, _ := s.BeginRun("generate", "", "")

	recs := []StageRecord{
		{RunID: run.RunID, Stage: "assign_placement", RecordID: 1, RefID: 1, Passed: true, Payload: `{"id":1}`},
		{RunID: run.RunID, Stage: "assign_placement", RecordID: 2, RefID: 2, FailedRounds: 5, Payload: `{"id":2}`},
		{RunID: run.RunID, Stage: "generate_code", RecordID: 1, Passed: true, FailedRounds: 1, Payload: `{"id":1}`},
	}
	for _, r := range recs {
		if err := s.PutRecord(r); err != nil {
			t.Fatalf("PutRecord: %v", err)
		}
	}
	// Replace record 2 with a passing copy.
	if err := s.PutRecord(StageRecord{RunID: run.RunID, Stage: "assign_placement", RecordID: 2, RefID: 2,
		Passed: true, FailedRounds: 3, Payload: `{"id":2,"v":2}`}); err != nil {
		t.Fatalf("PutRecord upsert: %v", err)
	}

	counts, err := s.StageCounts(run.RunID)
	if err != nil {
		t.Fatalf("StageCounts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(counts))
	}
	ap := counts[0]
	if ap.Stage != "assign_placement" || ap.Records != 2 || ap.Passed != 2 || ap.MeanFailedRounds != 1.5 {
		t.Errorf("unexpected assign counts: %+v", ap)
	}

	list, err := s.Records(run.RunID, "assign_placement", 10)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(list) != 2 || list[1].Payload != `{"id":2,"v":2}` {
		t.Fatalf("unexpected records: %+v", list)
	}
}

func TestRecordsJoinLatestDecision(t *testing.T) {
	s := tempDB(t)
	run, _ := s.BeginRun("generate", "", "")
	if err := s.PutRecord(StageRecord{RunID: run.RunID, Stage: "generate_code", RecordID: 7, Payload: "{}"}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	for _, d := range []string{"flag", "discard"} {
		_, err := s.DB().Exec(
			`INSERT INTO provenance_log (run_id, stage, record_id, trigger_type, decision, reason, created_at)
			 VALUES (?, 'generate_code', 7, 'gate', ?, 'r', '2026-01-01T00:00:00Z')`, run.RunID, d)
		if err != nil {
			t.Fatalf("seed provenance: %v", err)
		}
	}

	list, err := s.Records(run.RunID, "generate_code", 10)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(list) != 1 || list[0].Decision != "discard" {
		t.Fatalf("expected latest decision discard, got %+v", list)
	}
}

func TestPutRecordOnClosedDB(t *testing.T) {
	s := tempDB(t)
	s.Close()
	if err := s.PutRecord(StageRecord{RunID: "x", Stage: "s", Payload: "{}"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

func TestDBAccessor(t *testing.T) {
	s := tempDB(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil DB")
	}
}

func TestNewStoreWithDB(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	s := NewStoreWithDB(db)
	if _, err := s.BeginRun("eval", "", ""); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
}

func TestNewStore_CorruptDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "corrupt.db")
	os.WriteFile(dbPath, []byte("not a sqlite database"), 0644)

	if _, err := NewStore(dbPath); err == nil {
		t.Fatal("expected error for corrupted DB file")
	}
}
