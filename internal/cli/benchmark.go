package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanglvm/casebank/internal/benchmark"
	"github.com/khanglvm/casebank/internal/engine"
	"github.com/khanglvm/casebank/internal/seed"
)

// NewBenchmarkCmd creates the 'benchmark' command for retrieval quality testing.
func NewBenchmarkCmd(opts *Options) *cobra.Command {
	var (
		casesFile  string
		k          int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "benchmark <seed-file>",
		Short: "Measure retrieval quality: semantic vs keyword-only ranking",
		Long: `Load a seed file into a scratch store and measure how often the expected
example is retrieved:

SEMANTIC MODE:
  All five signals, embeddings included.

DEGRADED MODE:
  Embedding backend treated as unavailable; keyword, domain, quality and
  recency signals only.

Without --cases, each seeded story is used as its own query. Your real
learning store is never touched.`,
		Example: `  # Self-retrieval over a seed file
  casebank benchmark samples.json

  # Paraphrased queries, top-3, as JSON
  casebank benchmark samples.json --cases queries.json -k 3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}
			samples, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}

			cases := benchmark.CasesFromSamples(samples)
			if casesFile != "" {
				if cases, err = benchmark.LoadCases(casesFile); err != nil {
					return err
				}
			}
			if len(cases) == 0 {
				return fmt.Errorf("no benchmark cases in %s", args[0])
			}

			scratch, err := os.MkdirTemp("", "casebank-bench-*")
			if err != nil {
				return fmt.Errorf("failed to create scratch dir: %w", err)
			}
			defer os.RemoveAll(scratch)

			s := *settings
			s.DataDir = scratch
			eng, err := engine.Open(ctx, &s)
			if err != nil {
				return fmt.Errorf("failed to open scratch engine: %w", err)
			}
			defer eng.Close()

			res, err := seed.Ingest(ctx, eng.Store, samples)
			if err != nil {
				return fmt.Errorf("failed to seed scratch store (%d added): %w", res.Added, err)
			}

			runner := benchmark.NewRunner(eng.Embedder, eng.Ranker, k)
			result, err := runner.RunBenchmark(ctx, cases, eng.Stats().TotalRecorded)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprint(cmd.OutOrStdout(), benchmark.FormatResult(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&casesFile, "cases", "", `JSON file of {"query", "expectedStory"} pairs`)
	cmd.Flags().IntVarP(&k, "k", "k", benchmark.DefaultK, "Cutoff for hit@k")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}
