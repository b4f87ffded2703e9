package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/augment"
	"github.com/danielpatrickdp/scenegen/internal/dedup"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/validate"
)

// #region augment
var (
	augmentNeeded int
	augmentSeed   int64
)

var augmentCmd = &cobra.Command{
	Use:   "augment",
	Short: "Grow a description set by evolving seed descriptions",
	Long: `augment writes the seeds followed by every accepted evolution to
--output. Each attempt picks a parent among everything accepted so far, so
a fixed --seed reproduces the same lineage given the same oracle replies.`,
	RunE: runAugment,
}

func init() {
	augmentCmd.Flags().StringSliceVar(&inputPatterns, "input", nil, "Seed description files (JSONL or CSV)")
	augmentCmd.Flags().StringVar(&outputPath, "output", "", "Output JSONL file")
	augmentCmd.Flags().IntVar(&augmentNeeded, "needed", -1, "Override the configured attempt count")
	augmentCmd.Flags().Int64Var(&augmentSeed, "seed", 0, "Override the configured sampler seed")
	_ = augmentCmd.MarkFlagRequired("input")
	_ = augmentCmd.MarkFlagRequired("output")
}

func runAugment(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	a, err := setup(ctx, "augment")
	if err != nil {
		return err
	}
	var res augment.Result
	defer func() {
		err = a.finish(err, map[string]int{"accepted": res.Accepted, "skipped": res.Skipped})
	}()

	seeds, err := readDescriptions(inputPatterns)
	if err != nil {
		return err
	}
	opts := augment.Options{
		Needed:      a.cfg.Augment.Needed,
		IDStartFrom: a.cfg.Augment.IDStartFrom,
		Seed:        uint64(a.cfg.Augment.Seed),
	}
	if augmentNeeded >= 0 {
		opts.Needed = augmentNeeded
	}
	if cmd.Flags().Changed("seed") {
		opts.Seed = uint64(augmentSeed)
	}

	checker := validate.DescriptionChecker{
		Conflict: validate.NewConflictChecker(a.router.For(orchestrator.StageCheckDesc), 0, a.logger),
	}
	index := dedup.NewIndex(a.cfg.Dedup.Threshold, a.cfg.Dedup.NumPerm)
	aug := augment.New(a.router.For(orchestrator.StageAugment), checker, index, a.orch, opts, a.logger)

	w, err := records.Create(outputPath)
	if err != nil {
		return err
	}
	defer w.Close()

	a.logger.Info("augmenting", zap.Int("seeds", len(seeds)), zap.Int("needed", opts.Needed))
	res, err = aug.Run(ctx, seeds, w)
	if err != nil {
		return err
	}
	fmt.Printf("accepted %d, skipped %d, index holds %d descriptions\n", res.Accepted, res.Skipped, index.Len())
	return nil
}

// #endregion augment
