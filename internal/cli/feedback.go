package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/khanglvm/casebank/internal/feedback"
	"github.com/khanglvm/casebank/internal/model"
)

// NewFeedbackCmd creates the 'feedback' command.
func NewFeedbackCmd(opts *Options) *cobra.Command {
	var (
		comments      string
		correctedFile string
	)

	cmd := &cobra.Command{
		Use:   "feedback <request-id> <rating>",
		Short: "Rate recorded test cases (0.0 - 5.0)",
		Long: `Rate the test cases recorded for a request. The rating moves the
example's quality score, which ranks it higher or lower in later retrievals.

A corrected set of test cases may be attached; it is served in place of the
original whenever the example is a strong match.`,
		Example: `  casebank feedback 2f1c... 4.5
  casebank feedback 2f1c... 2 --comments "missed expiry" --corrected fixed.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid rating %q: %w", args[1], err)
			}
			if err := feedback.ValidateRating(rating); err != nil {
				return err
			}

			sub := feedback.Submission{RequestID: args[0], Rating: rating, Comments: comments}
			if correctedFile != "" {
				if sub.CorrectedOutput, err = readTestCases(correctedFile, cmd.InOrStdin()); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			eng, err := opts.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			ex, err := eng.Feedback.Submit(ctx, sub)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return fmt.Errorf("%w\n💡 Record test cases for this request before rating them", err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Feedback recorded for %s: quality %.2f after %d ratings\n",
				ex.RequestID, ex.QualityScore, ex.FeedbackCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&comments, "comments", "", "Free-form comments")
	cmd.Flags().StringVar(&correctedFile, "corrected", "", "JSON file of corrected test cases ('-' for stdin)")
	return cmd
}
