// Package records defines the persisted per-stage records and their
// line-delimited JSON encoding. Later stages reference earlier records by id.
package records

import (
	"sync/atomic"

	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/placement"
	"github.com/danielpatrickdp/scenegen/internal/respparse"
	"github.com/danielpatrickdp/scenegen/internal/script"
)

// #region identified
// Identified is any record with an integer id.
type Identified interface {
	RecordID() int
}
// #endregion identified

// #region description
// Description is one scene description, seed or augmented.
type Description struct {
	ID                 int    `json:"id"`
	Description        string `json:"description"`
	ParentID           int    `json:"parent_id,omitempty"`
	Method             string `json:"augment_method,omitempty"`
	Depth              int    `json:"depth"`
	HasQuantityChanged bool   `json:"has_quantity_changed"`
}

func (r Description) RecordID() int { return r.ID }
// #endregion description

// #region stage-records
// RetrieveObjects is the object listing and rewritten description.
type RetrieveObjects struct {
	ID              int                      `json:"id"`
	DescriptionID   int                      `json:"description_id"`
	ModelInput      string                   `json:"model_input"`
	ModelOutput     string                   `json:"model_output"`
	Objects         string                   `json:"objects"`
	RewrittenPrompt string                   `json:"rewritten_prompt"`
	Analysis        []respparse.StepAnalysis `json:"analysis,omitempty"`
}

func (r RetrieveObjects) RecordID() int { return r.ID }

// ExtractLayout is the object list with absolute and relative positions.
type ExtractLayout struct {
	ID                int                      `json:"id"`
	RetrieveObjectsID int                      `json:"retrieve_objects_id"`
	ModelInput        string                   `json:"model_input"`
	ModelOutput       string                   `json:"model_output"`
	Prompt            string                   `json:"prompt"`
	Objects           string                   `json:"objects"`
	Coordinates       string                   `json:"coordinates"`
	Relations         string                   `json:"relations"`
	Attempts          int                      `json:"attempts"`
	Analysis          []respparse.StepAnalysis `json:"analysis,omitempty"`
}

func (r ExtractLayout) RecordID() int { return r.ID }

// AssignPlacement is the final merged placement of one layout.
type AssignPlacement struct {
	ID              int                 `json:"id"`
	ExtractLayoutID int                 `json:"extract_layout_id"`
	ModelInput      string              `json:"model_input"`
	ModelOutput     string              `json:"model_output"`
	CoordsFinal     []placement.Entry   `json:"coords_final"`
	Unplaced        []string            `json:"unplaced,omitempty"`
	DroppedGuarding []string            `json:"dropped_guarding,omitempty"`
	Overlaps        []placement.Overlap `json:"overlaps,omitempty"`
	FailedRounds    int                 `json:"failed_rounds"`
	Passed          bool                `json:"passed"`
}

func (r AssignPlacement) RecordID() int { return r.ID }

// CheckPositionalError is one conflict check of a candidate placement.
type CheckPositionalError struct {
	ID              int               `json:"id"`
	ExtractLayoutID int               `json:"extract_layout_id"`
	Prompt          string            `json:"prompt"`
	Coords          []placement.Entry `json:"coords"`
	ModelInput      string            `json:"model_input"`
	ModelOutput     string            `json:"model_output"`
	ShouldFilter    bool              `json:"should_filter"`
	FilterReason    string            `json:"filter_reason"`
	Conforming      bool              `json:"conforming"`
}

func (r CheckPositionalError) RecordID() int { return r.ID }

// FixPositionalError is one feedback round of the placement stage. It is
// only written for rounds that carried feedback.
type FixPositionalError struct {
	ID              int              `json:"id"`
	ExtractLayoutID int              `json:"extract_layout_id"`
	ModelInput      []oracle.Message `json:"model_input"`
	ModelOutput     string           `json:"model_output"`
	IsLastRound     bool             `json:"is_last_round"`
}

func (r FixPositionalError) RecordID() int { return r.ID }

// GenerateCode is the sanitized script of one description.
type GenerateCode struct {
	ID           int           `json:"id"`
	Description  string        `json:"description"`
	Code         string        `json:"code"`
	Preview      string        `json:"preview,omitempty"`
	FailedRounds int           `json:"failed_rounds"`
	Passed       bool          `json:"passed"`
	Reasons      []string      `json:"reasons,omitempty"`
	History      []script.Step `json:"history,omitempty"`
}

func (r GenerateCode) RecordID() int { return r.ID }
// #endregion stage-records

// #region sequence
// Sequence hands out increasing ids. It is shared by the workers of a batch,
// so Next is safe for concurrent use.
type Sequence struct {
	n atomic.Int64
}

// NewSequence starts a sequence whose first id is start.
func NewSequence(start int) *Sequence {
	s := &Sequence{}
	s.n.Store(int64(start) - 1)
	return s
}

// Next returns the next id.
func (s *Sequence) Next() int {
	return int(s.n.Add(1))
}
// #endregion sequence
