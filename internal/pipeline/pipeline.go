// Package pipeline drives one scene description through object retrieval,
// layout extraction, placement and script generation.
package pipeline

// #region imports
import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/placement"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/script"
	"github.com/danielpatrickdp/scenegen/internal/validate"
)

// #endregion

// #region options

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	// ParseBound caps requests per well-formed reply; 0 is unbounded.
	ParseBound int
	// SyntaxCheck adds the C# parse rule to script validation.
	SyntaxCheck bool
	// Range bounds locally assigned positions.
	Range placement.Range
	// ConflictAttempts caps requests per conforming conflict verdict.
	ConflictAttempts int
	Guidance         script.Guidance
}

// #endregion

// #region pipeline

// Pipeline holds one worker's oracle routing and stage settings. It is not
// safe for concurrent use; give every worker its own.
type Pipeline struct {
	router   oracle.Router
	orch     *orchestrator.Orchestrator
	conflict *validate.ConflictChecker
	builder  script.PromptBuilder
	opts     Options
	logger   *zap.Logger
}

// New wires a pipeline. orch may be nil for default bounds without
// attempt memory.
func New(router oracle.Router, orch *orchestrator.Orchestrator, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Range.Max <= opts.Range.Min {
		opts.Range = placement.DefaultRange
	}
	if opts.Guidance == nil {
		g, err := script.DefaultGuidance()
		if err != nil {
			logger.Warn("builtin guidance unavailable", zap.Error(err))
		}
		opts.Guidance = g
	}
	return &Pipeline{
		router:   router,
		orch:     orch,
		conflict: validate.NewConflictChecker(router.For(orchestrator.StageCheckPlacement), opts.ConflictAttempts, logger),
		builder:  script.PromptBuilder{Guidance: opts.Guidance},
		opts:     opts,
		logger:   logger.Named("pipeline"),
	}
}

// #endregion

// #region process

// Scene is every record produced for one description.
type Scene struct {
	Retrieve  records.RetrieveObjects
	Layout    records.ExtractLayout
	Placement PlacementResult
	Code      records.GenerateCode
}

// Process runs the full chain for d. Soft failures (a stage that never got a
// well-formed reply) come back as errors satisfying orchestrator.IsSoft.
func (p *Pipeline) Process(ctx context.Context, d records.Description) (Scene, error) {
	var sc Scene
	var err error
	if sc.Retrieve, err = p.RetrieveObjects(ctx, d); err != nil {
		return sc, fmt.Errorf("description %d: %w", d.ID, err)
	}
	if sc.Layout, err = p.ExtractLayout(ctx, sc.Retrieve); err != nil {
		return sc, fmt.Errorf("description %d: %w", d.ID, err)
	}
	if sc.Placement, err = p.AssignPlacement(ctx, sc.Layout); err != nil {
		return sc, fmt.Errorf("description %d: %w", d.ID, err)
	}
	sc.Code, err = p.GenerateScript(ctx, d.ID, sc.Retrieve.RewrittenPrompt, sc.Layout.Objects, sc.Placement.Record.CoordsFinal)
	if err != nil {
		return sc, fmt.Errorf("description %d: %w", d.ID, err)
	}
	p.logger.Info("scene processed",
		zap.Int("id", d.ID),
		zap.Int("placement_failed_rounds", sc.Placement.Record.FailedRounds),
		zap.Int("code_failed_rounds", sc.Code.FailedRounds))
	return sc, nil
}

// #endregion
