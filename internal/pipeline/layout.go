package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/normalize"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/respparse"
)

// #region retrieve-objects

// RetrieveObjects lists the objects of d and rewrites it with canonical
// names. The rewritten description is cleaned, and the stored reply carries
// the cleaned text in place of the raw one.
func (p *Pipeline) RetrieveObjects(ctx context.Context, d records.Description) (records.RetrieveObjects, error) {
	o := p.router.For(orchestrator.StageRetrieveObjects)
	request := prompts.RetrieveObjects(d.Description)

	listing, reply, err := orchestrator.UntilWellFormed(ctx, p.opts.ParseBound,
		func(ctx context.Context) (string, error) { return o.Generate(ctx, request) },
		respparse.ParseObjectListing)
	if err != nil {
		return records.RetrieveObjects{}, fmt.Errorf("%s: %w", orchestrator.StageRetrieveObjects, err)
	}

	cleaned, _ := normalize.Clean(listing.Description)
	if listing.Description != "" {
		reply = strings.ReplaceAll(reply, listing.Description, cleaned)
	}
	p.logger.Debug("objects retrieved", zap.Int("id", d.ID), zap.Strings("objects", listing.Objects))
	return records.RetrieveObjects{
		ID:              d.ID,
		DescriptionID:   d.ID,
		ModelInput:      request,
		ModelOutput:     reply,
		Objects:         listing.ObjectsRaw,
		RewrittenPrompt: cleaned,
		Analysis:        listing.Analysis,
	}, nil
}

// #endregion

// #region extract-layout

// ExtractLayout asks for the object list, the absolute positions and the
// relative positions of a rewritten description.
func (p *Pipeline) ExtractLayout(ctx context.Context, ro records.RetrieveObjects) (records.ExtractLayout, error) {
	o := p.router.For(orchestrator.StageExtractLayout)
	request := prompts.ExtractLayout(ro.RewrittenPrompt, ro.Objects)

	attempts := 0
	parsed, reply, err := orchestrator.UntilWellFormed(ctx, p.opts.ParseBound,
		func(ctx context.Context) (string, error) {
			attempts++
			return o.Generate(ctx, request)
		},
		respparse.ExtractLayout.Parse)
	if err != nil {
		return records.ExtractLayout{}, fmt.Errorf("%s: %w", orchestrator.StageExtractLayout, err)
	}
	if attempts > 1 {
		p.logger.Info("layout needed regeneration", zap.Int("id", ro.ID), zap.Int("attempts", attempts))
	}
	return records.ExtractLayout{
		ID:                ro.ID,
		RetrieveObjectsID: ro.ID,
		ModelInput:        request,
		ModelOutput:       reply,
		Prompt:            ro.RewrittenPrompt,
		Objects:           parsed.Raw(0),
		Coordinates:       parsed.Raw(1),
		Relations:         parsed.Raw(2),
		Attempts:          attempts,
		Analysis:          parsed.Analysis,
	}, nil
}

// #endregion
