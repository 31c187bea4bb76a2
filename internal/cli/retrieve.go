package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanglvm/casebank/internal/mcp"
	"github.com/khanglvm/casebank/internal/model"
)

// NewRetrieveCmd creates the 'retrieve' command.
func NewRetrieveCmd(opts *Options) *cobra.Command {
	var (
		limit      int
		recordFile string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <story>",
		Short: "Rank past examples for a user story",
		Long: `Rank stored examples against a user story and print the best matches.

With --record, the given test cases are stored under the new request ID
once ranking is done, exactly as an MCP client would record them.`,
		Example: `  casebank retrieve "As a user, I want to reset my password"
  casebank retrieve "As a user, I want to reset my password" --limit 3 --json
  casebank retrieve "As a user, I want to reset my password" --record cases.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := opts.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			r, err := eng.Retrieval.Retrieve(ctx, args[0], limit)
			if err != nil {
				return err
			}
			resp := mcp.NewRetrieveResponse(r, eng.Settings.Retrieval.StrongMatch)

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, resp); err != nil {
					return err
				}
			} else {
				printRetrieval(out, resp)
			}

			if recordFile == "" {
				return nil
			}
			cases, err := readTestCases(recordFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if _, err := eng.Retrieval.Record(r, cases).Wait(ctx); err != nil {
				return fmt.Errorf("failed to record %s: %w", r.RequestID, err)
			}
			if !jsonOutput {
				fmt.Fprintf(out, "\n✓ Recorded %d test cases as %s\n", len(cases), r.RequestID)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of examples (default from config)")
	cmd.Flags().StringVar(&recordFile, "record", "", "JSON file of test cases to record for this story ('-' for stdin)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

// NewRecordCmd creates the 'record' command.
func NewRecordCmd(opts *Options) *cobra.Command {
	var casesFile string

	cmd := &cobra.Command{
		Use:   "record <story>",
		Short: "Store test cases for a story without a prior retrieval",
		Example: `  casebank record "As an admin, I want to deactivate accounts" --cases cases.json
  cat cases.json | casebank record "As an admin, I want to deactivate accounts" --cases -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return fmt.Errorf("story is required")
			}
			cases, err := readTestCases(casesFile, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, err := opts.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			ex, err := eng.Retrieval.RecordText(args[0], cases).Wait(ctx)
			if err != nil {
				return fmt.Errorf("failed to record: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded %d test cases as %s (%s)\n", len(cases), ex.RequestID, ex.Domain)
			return nil
		},
	}

	cmd.Flags().StringVar(&casesFile, "cases", "", "JSON file of test cases ('-' for stdin)")
	cmd.MarkFlagRequired("cases")
	return cmd
}

func printRetrieval(w io.Writer, resp mcp.RetrieveResponse) {
	fmt.Fprintf(w, "Request ID: %s\n", resp.RequestID)
	fmt.Fprintf(w, "Domain:     %s (%s)\n", resp.Domain, resp.Complexity)
	if resp.Degraded {
		fmt.Fprintln(w, "⚠ Embedding backend unavailable; ranked by keyword signals only")
	}

	if resp.Fallback {
		fmt.Fprintln(w, "⚠ Ranking failed; showing fallback test cases")
	}

	if len(resp.Examples) == 0 {
		fmt.Fprintln(w, "\nNo examples yet. Record test cases to start learning.")
	} else {
		fmt.Fprintf(w, "\nExamples (%d):\n", len(resp.Examples))
	}
	for i, ex := range resp.Examples {
		marker := ""
		if ex.Corrected {
			marker = " [corrected]"
		}
		fmt.Fprintf(w, "\n%d. %.3f  %s%s\n", i+1, ex.Score, ex.Story, marker)
		fmt.Fprintf(w, "   id: %s  quality: %.2f  source: %s\n", ex.RequestID, ex.QualityScore, ex.Source)
		s := ex.Signals
		fmt.Fprintf(w, "   semantic %.2f  domain %.2f  keyword %.2f  quality %.2f  recency %.2f\n",
			s.Semantic, s.Domain, s.Keyword, s.Quality, s.Recency)
		for _, tc := range ex.TestCases {
			fmt.Fprintf(w, "     - %s %s\n", tc.ID, tc.Title)
		}
	}

	if len(resp.SuggestedCases) > 0 {
		fmt.Fprintf(w, "\nSuggested test cases (%d):\n", len(resp.SuggestedCases))
		for _, tc := range resp.SuggestedCases {
			fmt.Fprintf(w, "  - %s %s\n", tc.ID, tc.Title)
		}
	}
}

// readTestCases decodes a JSON array of test cases from path, or from stdin when path is "-".
func readTestCases(path string, stdin io.Reader) ([]model.TestCase, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read test cases: %w", err)
	}

	var cases []model.TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse test cases: %w", err)
	}
	return cases, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

