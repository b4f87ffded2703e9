package validate

import (
	"context"
)

// #region description

// DescriptionResult is the combined local and oracle verdict for one
// description.
type DescriptionResult struct {
	Verdict  Verdict
	Local    Verdict
	Conflict *ConflictResult
}

// DescriptionChecker runs the local text rules and, only when they all pass,
// the oracle-assisted description check.
type DescriptionChecker struct {
	Conflict *ConflictChecker
}

// Check validates description. Local violations are reported together and
// skip the oracle call. A nil Conflict checker runs local rules only.
func (d DescriptionChecker) Check(ctx context.Context, description string) (DescriptionResult, error) {
	local := CheckText(description)
	res := DescriptionResult{Verdict: local, Local: local}
	if local.Violated || d.Conflict == nil {
		return res, nil
	}
	cr, err := d.Conflict.CheckDescription(ctx, description)
	if err != nil {
		return res, err
	}
	res.Conflict = &cr
	res.Verdict = cr.Verdict
	return res, nil
}

// #endregion description
