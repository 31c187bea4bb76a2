package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanglvm/casebank/internal/seed"
)

// NewSeedCmd creates the 'seed' command.
func NewSeedCmd(opts *Options) *cobra.Command {
	var patterns []string

	cmd := &cobra.Command{
		Use:   "seed <file-or-dir>",
		Short: "Import sample stories and test cases",
		Long: `Import a JSON array of {"userStory", "testCases"} samples, or every
matching file under a directory. Samples already imported are skipped, so
seeding the same files twice is safe.`,
		Example: `  casebank seed samples.json
  casebank seed ./samples --pattern "**/*.json"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("failed to access %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			eng, err := opts.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			var res seed.Result
			if info.IsDir() {
				if len(patterns) == 0 {
					patterns = eng.Settings.Seeds.Patterns
				}
				res, err = seed.ScanDir(ctx, eng.Store, args[0], patterns)
			} else {
				res, err = seed.IngestFile(ctx, eng.Store, args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Seeded: %d added, %d skipped, %d failed\n", res.Added, res.Skipped, res.Failed)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Glob patterns for directories (default from config)")
	return cmd
}
