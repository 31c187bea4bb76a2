package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewLearningCmd creates the learning command group.
func NewLearningCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Inspect and manage the learning store",
		Long: `The learning store keeps every recorded story, its test cases, ratings
and corrections in a local SQLite database (dataDir/casebank.db).

Commands:
  status   Show learning statistics
  export   Export stored examples as JSON
  analyze  Summarize feedback trends
  clear    Delete all learning data`,
	}

	cmd.AddCommand(newLearningStatusCmd(opts))
	cmd.AddCommand(newLearningExportCmd(opts))
	cmd.AddCommand(newLearningAnalyzeCmd(opts))
	cmd.AddCommand(newLearningClearCmd(opts))

	return cmd
}

// newLearningStatusCmd shows learning statistics.
func newLearningStatusCmd(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show learning statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			stats := eng.Stats()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, stats)
			}

			lastUpdated := "never"
			if !stats.LastUpdatedAt.IsZero() {
				lastUpdated = stats.LastUpdatedAt.Local().Format(time.RFC1123)
			}

			fmt.Fprintln(out, "Learning System Status")
			fmt.Fprintln(out, "======================")
			fmt.Fprintf(out, "Database:          %s\n", eng.DatabasePath())
			fmt.Fprintf(out, "Examples recorded: %d\n", stats.TotalRecorded)
			fmt.Fprintf(out, "Feedback received: %d\n", stats.TotalFeedbackReceived)
			fmt.Fprintf(out, "Last updated:      %s\n", lastUpdated)
			fmt.Fprintf(out, "Embedding model:   %s (dim %d)\n", stats.EmbeddingModel, stats.Dimension)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Note: Run 'casebank learning export' to view stored examples")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

// newLearningExportCmd exports stored examples as JSON.
func newLearningExportCmd(opts *Options) *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored examples as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			examples := eng.Store.Export()
			if outputFile == "" {
				return writeJSON(cmd.OutOrStdout(), examples)
			}

			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outputFile, err)
			}
			if err := writeJSON(f, examples); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d examples to %s\n", len(examples), outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// newLearningAnalyzeCmd summarizes the feedback log.
func newLearningAnalyzeCmd(opts *Options) *cobra.Command {
	var (
		days       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize feedback: averages, trends and weak spots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := opts.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			var since time.Time
			if days > 0 {
				since = time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			}

			report, err := eng.Analyze(ctx, since)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return report.Write(cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Only feedback from the last N days (0 for all)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

// newLearningClearCmd deletes all learning data.
func newLearningClearCmd(opts *Options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all learning data",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprint(out, "This will delete all learning data. Continue? (y/N): ")
				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.TrimSpace(response)
				if response != "y" && response != "Y" {
					fmt.Fprintln(out, "Cancelled")
					return nil
				}
			}

			ctx := cmd.Context()
			eng, err := opts.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			n := eng.Stats().TotalRecorded
			if err := eng.Store.Clear(ctx); err != nil {
				return fmt.Errorf("failed to clear learning data: %w", err)
			}

			fmt.Fprintf(out, "Learning data cleared successfully (%d examples removed)\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}
