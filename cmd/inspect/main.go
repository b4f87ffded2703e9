package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/scenegen/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to scenegen.db")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail")
	stage := flag.String("stage", "", "list the records of one stage (needs --run)")
	limit := flag.Int("limit", 50, "max records listed with --stage")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" || (*stage != "" && *runID == "") {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/scenegen.db [--last N] [--run id [--stage name]] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *stage != "":
		err = runRecordsMode(store, *runID, *stage, *limit, *jsonOut)
	case *runID != "":
		err = runDetailMode(store, *runID, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID    string `json:"run_id"`
	Command  string `json:"command"`
	Status   string `json:"status"`
	Started  string `json:"started_at"`
	Duration string `json:"duration,omitempty"`
}

func runListMode(store *state.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		lr := listRow{
			RunID:   r.RunID,
			Command: r.Command,
			Status:  string(r.Status),
			Started: r.StartedAt.Format("2006-01-02T15:04:05Z"),
		}
		if !r.FinishedAt.IsZero() {
			lr.Duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		rows[len(runs)-1-i] = lr
	}

	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-26s  %-9s  %-9s  %-20s  %s\n", "Run", "Command", "Status", "Started", "Duration")
	fmt.Printf("%-26s+-%-9s+-%-9s+-%-20s+-%s\n",
		"--------------------------", "---------", "---------", "--------------------", "--------")
	for _, r := range rows {
		dur := "-"
		if r.Duration != "" {
			dur = r.Duration
		}
		fmt.Printf("%-26s  %-9s  %-9s  %-20s  %s\n", r.RunID, r.Command, r.Status, r.Started, dur)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	RunID   string             `json:"run_id"`
	Parent  string             `json:"parent_run_id,omitempty"`
	Command string             `json:"command"`
	Status  string             `json:"status"`
	Started string             `json:"started_at"`
	Summary json.RawMessage    `json:"summary,omitempty"`
	Stages  []state.StageCount `json:"stages"`
}

func runDetailMode(store *state.Store, runID string, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	counts, err := store.StageCounts(runID)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:   run.RunID,
		Parent:  run.ParentRunID,
		Command: run.Command,
		Status:  string(run.Status),
		Started: run.StartedAt.Format("2006-01-02T15:04:05Z"),
		Stages:  counts,
	}
	if run.SummaryJSON != "" && json.Valid([]byte(run.SummaryJSON)) {
		out.Summary = json.RawMessage(run.SummaryJSON)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:      %s\n", out.RunID)
	if out.Parent != "" {
		fmt.Printf("Parent:   %s\n", out.Parent)
	}
	fmt.Printf("Command:  %s\n", out.Command)
	fmt.Printf("Status:   %s\n", out.Status)
	fmt.Printf("Started:  %s\n", out.Started)

	fmt.Printf("\nStages:\n")
	for _, c := range counts {
		fmt.Printf("  %-24s %5d records  %5d passed  %.2f mean failed rounds\n",
			c.Stage, c.Records, c.Passed, c.MeanFailedRounds)
	}
	if out.Summary != nil {
		fmt.Printf("\nSummary:\n  %s\n", run.SummaryJSON)
	}
	return nil
}

// #endregion detail-mode

// #region records-mode

type recordRow struct {
	RecordID     int    `json:"record_id"`
	RefID        int    `json:"ref_id"`
	Passed       bool   `json:"passed"`
	FailedRounds int    `json:"failed_rounds"`
	Decision     string `json:"decision,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func runRecordsMode(store *state.Store, runID, stage string, limit int, jsonOut bool) error {
	recs, err := store.Records(runID, stage, limit)
	if err != nil {
		return err
	}
	rows := make([]recordRow, len(recs))
	for i, r := range recs {
		rows[i] = recordRow{
			RecordID:     r.RecordID,
			RefID:        r.RefID,
			Passed:       r.Passed,
			FailedRounds: r.FailedRounds,
			Decision:     r.Decision,
			Reason:       r.Reason,
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-8s  %-8s  %-6s  %-6s  %-8s  %s\n", "Record", "Ref", "Passed", "Failed", "Decision", "Reason")
	fmt.Printf("%-8s+-%-8s+-%-6s+-%-6s+-%-8s+-%s\n",
		"--------", "--------", "------", "------", "--------", "--------------------")
	for _, r := range rows {
		decision := r.Decision
		if decision == "" {
			decision = "-"
		}
		fmt.Printf("%-8d  %-8d  %-6v  %-6d  %-8s  %s\n",
			r.RecordID, r.RefID, r.Passed, r.FailedRounds, decision, r.Reason)
	}
	return nil
}

// #endregion records-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
