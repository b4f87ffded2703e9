package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/batch"
	"github.com/danielpatrickdp/scenegen/internal/eval"
	"github.com/danielpatrickdp/scenegen/internal/gate"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/pipeline"
	"github.com/danielpatrickdp/scenegen/internal/records"
)

// #region flags
var (
	inputPatterns []string
	layoutsPath   string
	placesPath    string
	outputPath    string
	workers       int
)

// #endregion flags

// #region commands
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the full chain from descriptions to scripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), "generate", loadDescriptions, fullChain, generateStep)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Retrieve objects and extract layouts from descriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), "extract", loadDescriptions,
			[]string{orchestrator.StageRetrieveObjects, orchestrator.StageExtractLayout},
			func(ctx context.Context, p *pipeline.Pipeline, e *emitter, d records.Description) error {
				_, err := extractStep(ctx, p, e, d)
				return err
			})
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Place every object of extracted layouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		load := func() ([]records.ExtractLayout, error) { return readAll[records.ExtractLayout](inputPatterns) }
		return runStages(cmd.Context(), "assign", load,
			[]string{orchestrator.StageAssignPlacement, orchestrator.StageCheckPlacement, orchestrator.StageFixPlacement},
			func(ctx context.Context, p *pipeline.Pipeline, e *emitter, el records.ExtractLayout) error {
				res, err := p.AssignPlacement(ctx, el)
				if err != nil {
					return err
				}
				return e.placement(res)
			})
	},
}

var codegenCmd = &cobra.Command{
	Use:   "codegen",
	Short: "Generate scripts for placed layouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), "codegen", loadPlaced,
			[]string{orchestrator.StageGenerateCode},
			func(ctx context.Context, p *pipeline.Pipeline, e *emitter, in placed) error {
				rec, err := p.GenerateScript(ctx, in.Layout.ID, in.Layout.Prompt, in.Layout.Objects, in.Placement.CoordsFinal)
				if err != nil {
					return err
				}
				return e.code(rec)
			})
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run the full chain over a benchmark and write one script per description",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputPath == "" {
			return fmt.Errorf("eval needs --output")
		}
		return runStages(cmd.Context(), "eval", loadDescriptions, fullChain, generateStep)
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, extractCmd, assignCmd, evalCmd} {
		c.Flags().StringSliceVar(&inputPatterns, "input", nil, "Input files or glob patterns (JSONL or CSV)")
		_ = c.MarkFlagRequired("input")
		c.Flags().IntVar(&workers, "workers", 0, "Override the configured worker count")
	}
	evalCmd.Flags().StringVar(&outputPath, "output", "", "Where to write {id, description, code} lines")

	codegenCmd.Flags().StringVar(&layoutsPath, "layouts", "", "extract_layout records")
	codegenCmd.Flags().StringVar(&placesPath, "placements", "", "assign_placement records")
	codegenCmd.Flags().IntVar(&workers, "workers", 0, "Override the configured worker count")
	_ = codegenCmd.MarkFlagRequired("layouts")
	_ = codegenCmd.MarkFlagRequired("placements")
}

// #endregion commands

// #region inputs

var fullChain = []string{
	orchestrator.StageRetrieveObjects,
	orchestrator.StageExtractLayout,
	orchestrator.StageAssignPlacement,
	orchestrator.StageCheckPlacement,
	orchestrator.StageFixPlacement,
	orchestrator.StageGenerateCode,
}

func loadDescriptions() ([]records.Description, error) {
	return readDescriptions(inputPatterns)
}

func readAll[T any](patterns []string) ([]T, error) {
	files, err := expand(patterns)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, f := range files {
		recs, err := records.ReadFile[T](f)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// placed joins a layout with its placement.
type placed struct {
	Layout    records.ExtractLayout
	Placement records.AssignPlacement
}

func (p placed) RecordID() int { return p.Layout.ID }

// loadPlaced joins the two files by id. Layouts without a placement are
// skipped.
func loadPlaced() ([]placed, error) {
	layouts, err := records.ReadFile[records.ExtractLayout](layoutsPath)
	if err != nil {
		return nil, err
	}
	places, err := records.ReadFile[records.AssignPlacement](placesPath)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]records.AssignPlacement, len(places))
	for _, p := range places {
		byID[p.ExtractLayoutID] = p
	}
	var out []placed
	for _, el := range layouts {
		if p, ok := byID[el.ID]; ok {
			out = append(out, placed{Layout: el, Placement: p})
		}
	}
	return out, nil
}

// #endregion inputs

// #region steps

func extractStep(ctx context.Context, p *pipeline.Pipeline, e *emitter, d records.Description) (records.ExtractLayout, error) {
	ro, err := p.RetrieveObjects(ctx, d)
	if err != nil {
		return records.ExtractLayout{}, err
	}
	if err := e.retrieve(ro); err != nil {
		return records.ExtractLayout{}, err
	}
	el, err := p.ExtractLayout(ctx, ro)
	if err != nil {
		return el, err
	}
	return el, e.layout(el)
}

// generateStep runs every stage, writing each record as soon as its stage
// finishes so a later soft failure keeps the earlier outputs.
func generateStep(ctx context.Context, p *pipeline.Pipeline, e *emitter, d records.Description) error {
	el, err := extractStep(ctx, p, e, d)
	if err != nil {
		return err
	}
	res, err := p.AssignPlacement(ctx, el)
	if err != nil {
		return err
	}
	if err := e.placement(res); err != nil {
		return err
	}
	rec, err := p.GenerateScript(ctx, d.ID, el.Prompt, el.Objects, res.Record.CoordsFinal)
	if err != nil {
		return err
	}
	return e.code(rec)
}

// #endregion steps

// #region run-stages

// runSummary is stored with the run and printed on completion.
type runSummary struct {
	Inputs  int              `json:"inputs"`
	Done    int              `json:"done"`
	Skipped int              `json:"skipped"`
	Written map[string]int   `json:"written"`
	Eval    *eval.EvalResult `json:"eval,omitempty"`
}

type stepFunc[T any] func(ctx context.Context, p *pipeline.Pipeline, e *emitter, item T) error

// runStages fans items out over the worker pool. Each worker gets its own
// pipeline and shard files; shards are merged per stage once every worker
// has finished.
func runStages[T records.Identified](ctx context.Context, command string, load func() ([]T, error), stages []string, step stepFunc[T]) (err error) {
	a, err := setup(ctx, command)
	if err != nil {
		return err
	}
	summary := runSummary{Written: map[string]int{}}
	defer func() { err = a.finish(err, summary) }()

	items, err := load()
	if err != nil {
		return err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RecordID() < items[j].RecordID() })
	summary.Inputs = len(items)

	opts, err := a.pipelineOptions()
	if err != nil {
		return err
	}
	n := workers
	if n < 1 {
		n = a.cfg.Batch.Workers
		if command == "eval" {
			n = a.cfg.Batch.EvalWorkers
		}
	}
	a.logger.Info("starting", zap.String("command", command), zap.Int("inputs", len(items)), zap.Int("workers", n))

	seq := records.NewSequence(1)
	g := gate.NewGate(gate.DefaultGateConfig())
	coll := &collector{}
	var tallies tally

	runErr := batch.Run(ctx, items, n, func(ctx context.Context, worker int, chunk []T) error {
		log := a.logger.With(zap.Int("worker", worker))
		shards, err := openShards(a.cfg.OutDir, worker, stages)
		if err != nil {
			return err
		}
		defer shards.close()
		p := pipeline.New(a.router, a.orch, opts, log)
		e := &emitter{app: a, shards: shards, seq: seq, gate: g, coll: coll}

		t, err := batch.Each(ctx, chunk, func(ctx context.Context, item T) error {
			return step(ctx, p, e, item)
		}, func(item T, err error) {
			log.Warn("skipped", zap.Int("id", item.RecordID()), zap.Error(err))
		})
		tallies.add(t)
		return err
	})

	// Merge even after a failure so finished records are not lost.
	for _, stage := range stages {
		written, err := mergeStage(a.cfg.OutDir, stage, n)
		if err != nil {
			return err
		}
		summary.Written[stage] = written
	}
	summary.Done, summary.Skipped = tallies.done, tallies.skipped
	if runErr != nil {
		return runErr
	}

	coll.batch.Skipped = summary.Skipped
	if len(coll.batch.Placements) > 0 || len(coll.batch.Scripts) > 0 {
		res := eval.NewEvalHarness(eval.DefaultEvalConfig()).Run(coll.batch)
		summary.Eval = &res
	}
	if command == "eval" {
		if err := writeEvalOutput(outputPath, items, coll.batch.Scripts); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

type tally struct {
	mu            sync.Mutex
	done, skipped int
}

func (t *tally) add(b batch.Tally) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += b.Done
	t.skipped += b.Skipped
}

// #endregion run-stages

// #region eval-output

type evalEntry struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// writeEvalOutput writes one line per input. A description that produced no
// script gets an empty code field.
func writeEvalOutput[T records.Identified](path string, items []T, scripts []records.GenerateCode) error {
	byID := make(map[int]records.GenerateCode, len(scripts))
	for _, s := range scripts {
		byID[s.ID] = s
	}
	out := make([]evalEntry, 0, len(items))
	for _, it := range items {
		e := evalEntry{ID: it.RecordID()}
		if d, ok := any(it).(records.Description); ok {
			e.Description = d.Description
		}
		if s, ok := byID[e.ID]; ok {
			e.Code = s.Preview
		}
		out = append(out, e)
	}
	return records.WriteFile(path, out)
}

// #endregion eval-output
