package validate

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/metrics"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/placement"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
	"github.com/danielpatrickdp/scenegen/internal/respparse"
)

// #region conflict-types

// DefaultConflictAttempts bounds the requests made for one conforming verdict.
const DefaultConflictAttempts = 5

// ConflictResult is one oracle-assisted conflict check.
type ConflictResult struct {
	Verdict Verdict
	// Conforming is false when no reply matched the verdict grammar. The
	// check then reports no violation.
	Conforming bool
	Input      string
	Output     string
	Analysis   string
	Attempts   int
}

// ConflictChecker asks the oracle whether a placement or a description is
// internally consistent.
type ConflictChecker struct {
	oracle   oracle.Oracle
	attempts int
	logger   *zap.Logger
}

// NewConflictChecker builds a checker making up to attempts requests per
// check. attempts < 1 selects DefaultConflictAttempts.
func NewConflictChecker(o oracle.Oracle, attempts int, logger *zap.Logger) *ConflictChecker {
	if attempts < 1 {
		attempts = DefaultConflictAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictChecker{oracle: o, attempts: attempts, logger: logger.Named("conflict")}
}

// #endregion conflict-types

// #region conflict-checks

// CheckPlacement audits positions against the description they were derived
// from. A reported conflict carries the oracle's analysis as its reason.
func (c *ConflictChecker) CheckPlacement(ctx context.Context, description string, positions []placement.Entry) (ConflictResult, error) {
	body, err := json.MarshalIndent(positions, "", "    ")
	if err != nil {
		return ConflictResult{}, fmt.Errorf("marshal positions: %w", err)
	}
	return c.check(ctx, prompts.CheckPlacement(description, string(body)), respparse.LeadRelations)
}

// CheckDescription audits a description on its own.
func (c *ConflictChecker) CheckDescription(ctx context.Context, description string) (ConflictResult, error) {
	return c.check(ctx, prompts.CheckDescription(description), respparse.LeadObjects)
}

func (c *ConflictChecker) check(ctx context.Context, request, lead string) (ConflictResult, error) {
	res := ConflictResult{Input: request}
	for res.Attempts < c.attempts {
		res.Attempts++
		reply, err := c.oracle.Generate(ctx, request)
		if err != nil {
			return res, err
		}
		res.Output = reply
		v, ok := respparse.ParseVerdict(reply, lead)
		if !ok {
			continue
		}
		res.Conforming = true
		res.Analysis = v.Analysis
		if v.Error {
			res.Verdict = Fail(v.Analysis)
		}
		return res, nil
	}
	metrics.ConflictNonConforming.Inc()
	c.logger.Warn("no conforming verdict, treating as no conflict",
		zap.String("lead", lead),
		zap.Int("attempts", res.Attempts))
	return res, nil
}

// #endregion conflict-checks
