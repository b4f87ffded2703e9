// Command scenegen turns natural-language workstation descriptions into
// placed layouts and simulation scripts, and grows description datasets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// #region flags
var (
	configPath  string
	logLevel    string
	metricsAddr string
)

// #endregion flags

// #region root
var rootCmd = &cobra.Command{
	Use:   "scenegen",
	Short: "Generate workstation scenes with a language-model oracle",
	Long: `scenegen drives descriptions through object retrieval, layout
extraction, placement and script generation, writing one JSONL file per
stage and recording every run in SQLite.

Examples:
  scenegen generate --input 'data/**/*.jsonl'
  scenegen augment --input data/seed.jsonl --output data/prompts.jsonl
  scenegen eval --input benchmark/test_data.csv --output out/eval.jsonl`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(generateCmd, extractCmd, assignCmd, codegenCmd, augmentCmd, evalCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion root
