package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/eval"
	"github.com/danielpatrickdp/scenegen/internal/gate"
	"github.com/danielpatrickdp/scenegen/internal/logging"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/pipeline"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/state"
)

// #region shards

func stagePath(dir, stage string) string {
	return filepath.Join(dir, stage+".jsonl")
}

// shardSet is one worker's open output files, one per stage.
type shardSet struct {
	writers map[string]*records.Writer
}

func openShards(dir string, worker int, stages []string) (*shardSet, error) {
	s := &shardSet{writers: make(map[string]*records.Writer, len(stages))}
	for _, stage := range stages {
		w, err := records.Create(records.ShardPath(stagePath(dir, stage), worker))
		if err != nil {
			s.close()
			return nil, err
		}
		s.writers[stage] = w
	}
	return s, nil
}

func (s *shardSet) write(stage string, v any) error {
	w, ok := s.writers[stage]
	if !ok {
		return fmt.Errorf("no output for stage %s", stage)
	}
	return w.Write(v)
}

func (s *shardSet) close() error {
	var errs []error
	for _, w := range s.writers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func shardPaths(dir, stage string, workers int) []string {
	out := make([]string, workers)
	for i := range workers {
		out[i] = records.ShardPath(stagePath(dir, stage), i)
	}
	return out
}

func mergeInto[T records.Identified](dir, stage string, workers int) (int, error) {
	return records.Merge[T](stagePath(dir, stage), shardPaths(dir, stage, workers))
}

// mergeStage merges the worker shards of stage into its final file.
func mergeStage(dir, stage string, workers int) (int, error) {
	switch stage {
	case orchestrator.StageRetrieveObjects:
		return mergeInto[records.RetrieveObjects](dir, stage, workers)
	case orchestrator.StageExtractLayout:
		return mergeInto[records.ExtractLayout](dir, stage, workers)
	case orchestrator.StageAssignPlacement:
		return mergeInto[records.AssignPlacement](dir, stage, workers)
	case orchestrator.StageCheckPlacement:
		return mergeInto[records.CheckPositionalError](dir, stage, workers)
	case orchestrator.StageFixPlacement:
		return mergeInto[records.FixPositionalError](dir, stage, workers)
	case orchestrator.StageGenerateCode:
		return mergeInto[records.GenerateCode](dir, stage, workers)
	}
	return 0, fmt.Errorf("no record type for stage %s", stage)
}

// #endregion shards

// #region collector

// collector gathers what the evaluation needs from every worker.
type collector struct {
	mu    sync.Mutex
	batch eval.Batch
}

func (c *collector) add(fn func(b *eval.Batch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.batch)
}

// #endregion collector

// #region emitter

// emitter writes one worker's records to its shards and the store, and
// gates the placement and code records.
type emitter struct {
	app    *app
	shards *shardSet
	seq    *records.Sequence
	gate   *gate.Gate
	coll   *collector
}

func (e *emitter) persist(stage string, id, ref int, passed bool, failed int, v any) error {
	if err := e.shards.write(stage, v); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %d: %w", stage, id, err)
	}
	return e.app.store.PutRecord(state.StageRecord{
		RunID:        e.app.run.RunID,
		Stage:        stage,
		RecordID:     id,
		RefID:        ref,
		Passed:       passed,
		FailedRounds: failed,
		Payload:      string(payload),
	})
}

func (e *emitter) decide(s gate.Subject) error {
	d := e.gate.Evaluate(s)
	if d.Action != logging.DecisionKeep {
		e.app.logger.Info("gate decision",
			zap.String("stage", s.Stage),
			zap.Int("id", s.RecordID),
			zap.String("decision", string(d.Action)),
			zap.String("reason", d.Reason))
	}
	return gate.Record(e.app.store.DB(), e.app.run.RunID, s, d)
}

func (e *emitter) retrieve(rec records.RetrieveObjects) error {
	return e.persist(orchestrator.StageRetrieveObjects, rec.ID, rec.DescriptionID, true, 0, rec)
}

func (e *emitter) layout(rec records.ExtractLayout) error {
	return e.persist(orchestrator.StageExtractLayout, rec.ID, rec.RetrieveObjectsID, true, rec.Attempts-1, rec)
}

// placement numbers the check and fix records from the shared sequence.
func (e *emitter) placement(res pipeline.PlacementResult) error {
	for _, c := range res.Checks {
		c.ID = e.seq.Next()
		if err := e.persist(orchestrator.StageCheckPlacement, c.ID, c.ExtractLayoutID, !c.ShouldFilter, 0, c); err != nil {
			return err
		}
	}
	for _, f := range res.Fixes {
		f.ID = e.seq.Next()
		if err := e.persist(orchestrator.StageFixPlacement, f.ID, f.ExtractLayoutID, f.IsLastRound, 0, f); err != nil {
			return err
		}
	}
	rec := res.Record
	if err := e.persist(orchestrator.StageAssignPlacement, rec.ID, rec.ExtractLayoutID, rec.Passed, rec.FailedRounds, rec); err != nil {
		return err
	}
	e.coll.add(func(b *eval.Batch) {
		b.Placements = append(b.Placements, rec)
		b.Checks = append(b.Checks, res.Checks...)
	})
	return e.decide(gate.FromPlacement(rec, e.app.orch.Bound(orchestrator.StageAssignPlacement)))
}

func (e *emitter) code(rec records.GenerateCode) error {
	if err := e.persist(orchestrator.StageGenerateCode, rec.ID, rec.ID, rec.Passed, rec.FailedRounds, rec); err != nil {
		return err
	}
	e.coll.add(func(b *eval.Batch) { b.Scripts = append(b.Scripts, rec) })
	return e.decide(gate.FromCode(rec, e.app.orch.Bound(orchestrator.StageGenerateCode)))
}

// #endregion emitter
