package augment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/dedup"
	"github.com/danielpatrickdp/scenegen/internal/metrics"
	"github.com/danielpatrickdp/scenegen/internal/normalize"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/respparse"
	"github.com/danielpatrickdp/scenegen/internal/validate"
)

// DuplicateReason is the feedback for a candidate too close to a stored one.
const DuplicateReason = "Similar descriptions already exist. Try to change in other ways."

// #region augmenter

// Options tunes a run.
type Options struct {
	// Needed is the number of evolution attempts, accepted or not.
	Needed int
	// IDStartFrom is the lowest id a new description may take.
	IDStartFrom int
	Seed        uint64
}

// Augmenter evolves descriptions. It is single-threaded: parents are drawn
// from everything accepted so far.
type Augmenter struct {
	oracle  oracle.Oracle
	checker validate.DescriptionChecker
	index   *dedup.Index
	orch    *orchestrator.Orchestrator
	opts    Options
	sampler *Sampler
	logger  *zap.Logger
}

// New wires an augmenter. orch may be nil for default bounds.
func New(o oracle.Oracle, checker validate.DescriptionChecker, index *dedup.Index, orch *orchestrator.Orchestrator, opts Options, logger *zap.Logger) *Augmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.IDStartFrom < 1 {
		opts.IDStartFrom = 1
	}
	return &Augmenter{
		oracle:  o,
		checker: checker,
		index:   index,
		orch:    orch,
		opts:    opts,
		sampler: NewSampler(opts.Seed),
		logger:  logger.Named("augment"),
	}
}

// #endregion augmenter

// #region evolve

// Evolve asks for one rewrite of parent using method. ok is false when no
// candidate passed within the bound.
func (a *Augmenter) Evolve(ctx context.Context, parent records.Description, method string) (string, bool, error) {
	out, err := orchestrator.Run(ctx, a.orch, orchestrator.Stage[string]{
		Name:     orchestrator.StageAugment,
		Request:  prompts.Evolve(parent.Description, method),
		History:  orchestrator.Accumulate,
		Generate: a.generate,
		Validate: a.validate,
		Echo:     func(text, _ string) string { return text },
		Feedback: prompts.EvolveFeedback,
	})
	if err != nil {
		return "", false, err
	}
	return out.Artifact, out.Passed, nil
}

func (a *Augmenter) generate(ctx context.Context, _ int, messages []oracle.Message) (string, string, error) {
	reply, err := a.oracle.Invoke(ctx, messages)
	if err != nil {
		return "", reply, err
	}
	reply = strings.TrimSpace(reply)
	cleaned, ok := normalize.Clean(reply)
	if !ok || cleaned == "" {
		return "", reply, &respparse.FormatError{Section: "description", Reason: "empty reply"}
	}
	return cleaned, reply, nil
}

func (a *Augmenter) validate(ctx context.Context, text string) (validate.Verdict, error) {
	res, err := a.checker.Check(ctx, text)
	if err != nil {
		return validate.Verdict{}, err
	}
	if res.Verdict.Violated {
		return res.Verdict, nil
	}
	if !a.index.CanInsert(text) {
		metrics.DuplicateRejections.Inc()
		return validate.Fail(DuplicateReason), nil
	}
	return validate.Pass(), nil
}

// #endregion evolve

// #region run

// Result summarizes a run.
type Result struct {
	// Records holds the new descriptions only, in id order.
	Records  []records.Description
	Accepted int
	Skipped  int
}

// Run writes the seeds in id order, then makes opts.Needed evolution
// attempts and writes every accepted description as soon as it is accepted.
// Seeds enter the index unchecked.
func (a *Augmenter) Run(ctx context.Context, seeds []records.Description, w *records.Writer) (Result, error) {
	var res Result
	if len(seeds) == 0 {
		return res, fmt.Errorf("augment: no seed descriptions")
	}
	sorted := append([]records.Description(nil), seeds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[int]records.Description, len(sorted))
	ids := make([]int, 0, len(sorted))
	maxID := a.opts.IDStartFrom - 1
	for _, d := range sorted {
		if _, err := a.index.Insert(d.ID, d.Description, false); err != nil {
			return res, fmt.Errorf("seed %d: %w", d.ID, err)
		}
		if err := w.Write(d); err != nil {
			return res, err
		}
		byID[d.ID] = d
		ids = append(ids, d.ID)
		maxID = max(maxID, d.ID)
	}

	for i := range a.opts.Needed {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		parent := byID[a.sampler.Parent(ids)]
		m, method := a.sampler.Method(parent)

		text, ok, err := a.Evolve(ctx, parent, method)
		if err != nil {
			return res, fmt.Errorf("attempt %d from %d: %w", i, parent.ID, err)
		}
		if !ok {
			res.Skipped++
			a.logger.Info("no acceptable rewrite", zap.Int("parent", parent.ID), zap.Int("method", int(m)))
			continue
		}
		if inserted, err := a.index.Insert(maxID+1, text, true); err != nil || !inserted {
			res.Skipped++
			continue
		}
		maxID++
		d := records.Description{
			ID:                 maxID,
			Description:        text,
			ParentID:           parent.ID,
			Method:             method,
			Depth:              parent.Depth + 1,
			HasQuantityChanged: parent.HasQuantityChanged || m == MethodQuantity,
		}
		if err := w.Write(d); err != nil {
			return res, err
		}
		byID[d.ID] = d
		ids = append(ids, d.ID)
		res.Records = append(res.Records, d)
		res.Accepted++
		a.logger.Debug("description accepted", zap.Int("id", d.ID), zap.Int("parent", parent.ID), zap.Int("depth", d.Depth))
	}
	return res, nil
}

// #endregion run
