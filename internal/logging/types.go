package logging

import "time"

// #region decision
// Decision is what a gate made of one stage record.
type Decision string

const (
	DecisionKeep    Decision = "keep"
	DecisionFlag    Decision = "flag"
	DecisionDiscard Decision = "discard"
)
// #endregion decision

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	RunID        string
	Stage        string
	RecordID     int
	TriggerType  string // "gate" | "dedup" | "manual"
	EvidenceRefs string
	Decision     Decision
	Reason       string
	CreatedAt    time.Time
}
// #endregion provenance-entry
