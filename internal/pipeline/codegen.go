package pipeline

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/placement"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/script"
	"github.com/danielpatrickdp/scenegen/internal/validate"
)

// #region generate-script

func sanitize(reply string) (script.Artifact, error) {
	return script.Sanitize(reply), nil
}

// ValidateScript runs the script rules and, when enabled, the syntax rule.
func (p *Pipeline) ValidateScript(ctx context.Context, a script.Artifact) (validate.Verdict, error) {
	v := validate.CheckScript(a.Code())
	if !p.opts.SyntaxCheck || a.Empty() {
		return v, nil
	}
	sv, err := validate.CheckSyntax(ctx, a.Code())
	if err != nil {
		return v, err
	}
	return validate.Merge(v, sv), nil
}

// GenerateScript writes, sanitizes and validates the scene script for one
// placement. The last script is kept even when the bound ran out.
func (p *Pipeline) GenerateScript(ctx context.Context, id int, description, objects string, positions []placement.Entry) (records.GenerateCode, error) {
	request, err := p.builder.Build(description, objects, positions)
	if err != nil {
		return records.GenerateCode{}, fmt.Errorf("%s prompt: %w", orchestrator.StageGenerateCode, err)
	}

	out, err := orchestrator.Run(ctx, p.orch, orchestrator.Stage[script.Artifact]{
		Name:    orchestrator.StageGenerateCode,
		Request: request,
		History: orchestrator.ResetToLast,
		Generate: orchestrator.Generator(
			p.router.For(orchestrator.StageGenerateCode),
			p.router.For(orchestrator.StageFixCode),
			p.opts.ParseBound, sanitize),
		Validate: p.ValidateScript,
		Echo:     func(a script.Artifact, _ string) string { return a.Code() },
		Feedback: prompts.CodeFeedback,
	})
	if err != nil {
		return records.GenerateCode{}, err
	}

	code := out.Artifact.Code()
	rec := records.GenerateCode{
		ID:           id,
		Description:  description,
		Code:         code,
		FailedRounds: out.FailedRounds,
		Passed:       out.Passed,
		Reasons:      out.Verdict.Reasons,
		History:      out.Artifact.History,
	}
	if code != "" {
		rec.Preview = script.Wrap(code)
	}
	return rec, nil
}

// #endregion
