package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/scenegen/internal/config"
	"github.com/danielpatrickdp/scenegen/internal/gate"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/replay"
	"github.com/danielpatrickdp/scenegen/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to scenegen.db (DB mode)")
	runID := flag.String("run", "", "run to re-gate in DB mode (default: latest)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/scenegen.db [--run id]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *runID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

// row is one stored record with the decision the run logged for it.
type row struct {
	Label    string
	Expected string
	Replayed string
}

// runDBMode re-gates the placement and code records of a stored run with
// the current gate defaults and the bounds the run was configured with.
func runDBMode(dbPath, runID string) int {
	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	var run state.RunRecord
	if runID != "" {
		run, err = store.GetRun(runID)
	} else {
		run, err = store.LatestRun()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "find run: %v\n", err)
		return 2
	}

	bounds := orchestrator.DefaultBounds()
	var cfg config.Config
	if run.ConfigJSON != "" && json.Unmarshal([]byte(run.ConfigJSON), &cfg) == nil && len(cfg.Bounds) > 0 {
		bounds = cfg.OrchestratorBounds()
	}
	g := gate.NewGate(gate.DefaultGateConfig())

	var rows []row
	for _, stage := range []string{orchestrator.StageAssignPlacement, orchestrator.StageGenerateCode} {
		recs, err := store.Records(run.RunID, stage, -1)
		if err != nil {
			fmt.Fprintf(os.Stderr, "query %s: %v\n", stage, err)
			return 2
		}
		for _, r := range recs {
			s, err := subject(stage, r.Payload, bounds.For(stage))
			if err != nil {
				fmt.Fprintf(os.Stderr, "decode %s %d: %v\n", stage, r.RecordID, err)
				return 2
			}
			rows = append(rows, row{
				Label:    fmt.Sprintf("%s/%d", shortStage(stage), r.RecordID),
				Expected: r.Decision,
				Replayed: string(g.Evaluate(s).Action),
			})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "run %s has no gated records\n", run.RunID)
		return 2
	}
	fmt.Printf("Run %s (%s)\n\n", run.RunID, run.Command)
	return printComparison(rows)
}

func subject(stage, payload string, bound int) (gate.Subject, error) {
	switch stage {
	case orchestrator.StageAssignPlacement:
		var rec records.AssignPlacement
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return gate.Subject{}, err
		}
		return gate.FromPlacement(rec, bound), nil
	default:
		var rec records.GenerateCode
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return gate.Subject{}, err
		}
		return gate.FromCode(rec, bound), nil
	}
}

func shortStage(stage string) string {
	if stage == orchestrator.StageAssignPlacement {
		return "place"
	}
	return "code"
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	router, _ := f.Router()
	cfg := f.Config.ToReplayConfig()
	results, err := replay.Replay(context.Background(), router, f.Scenes, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	expected := make(map[int]string, len(f.ExpectedResults))
	for _, e := range f.ExpectedResults {
		expected[e.ID] = e.Action
	}
	rows := make([]row, 0, len(results))
	for _, r := range results {
		exp, ok := expected[r.ID]
		if !ok {
			continue
		}
		rows = append(rows, row{Label: fmt.Sprintf("scene/%d", r.ID), Expected: exp, Replayed: r.Action})
	}

	code := printComparison(rows)
	s := replay.Summarize(results, cfg.EvalConfig)
	fmt.Printf("Scenes: %d keep, %d flag, %d discard, %d skipped; eval passed: %v\n",
		s.Keeps, s.Flags, s.Discards, s.Skipped, s.Eval.Passed)
	return code
}

// #endregion fixture-mode

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(rows []row) int {
	fmt.Printf("%-14s| %-10s| %-10s| %s\n", "Record", "Expected", "Replayed", "Match")
	fmt.Printf("%-14s+%-11s+%-11s+%s\n",
		"--------------", "-----------", "-----------", "------")

	matches := 0
	for _, r := range rows {
		match := "DIFF"
		if r.Expected == r.Replayed {
			match = "OK"
			matches++
		}
		fmt.Printf("%-14s| %-10s| %-10s| %s\n", r.Label, r.Expected, r.Replayed, match)
	}

	diverge := len(rows) - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", len(rows), matches, diverge)
	if diverge > 0 {
		return 1
	}
	return 0
}

// #endregion output
