package state

import "time"

// #region run-status
// RunStatus is the lifecycle of one batch run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)
// #endregion run-status

// #region run-record
// RunRecord is one invocation of a pipeline command.
type RunRecord struct {
	RunID       string
	ParentRunID string
	Command     string
	ConfigJSON  string
	Status      RunStatus
	StartedAt   time.Time
	FinishedAt  time.Time
	SummaryJSON string
}
// #endregion run-record

// #region stage-record
// StageRecord is one persisted stage output. Payload is the record's JSON;
// RefID points at the record of the previous stage it was built from.
type StageRecord struct {
	RunID        string
	Stage        string
	RecordID     int
	RefID        int
	Passed       bool
	FailedRounds int
	Payload      string
	CreatedAt    time.Time
}
// #endregion stage-record

// #region stage-count
// StageCount aggregates the stored records of one stage.
type StageCount struct {
	Stage            string
	Records          int
	Passed           int
	MeanFailedRounds float64
}
// #endregion stage-count

// #region record-with-provenance
// RecordWithProvenance pairs a stage record with its latest decision.
type RecordWithProvenance struct {
	StageRecord
	Decision string
	Reason   string
}
// #endregion record-with-provenance
