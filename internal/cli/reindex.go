package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewReindexCmd creates the 'reindex' command.
func NewReindexCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Recompute every stored embedding",
		Long: `Re-embed every stored request with the configured embedder.

Opening the store already reindexes when the embedding model or dimension
changed; run this after changing the model behind the same name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := opts.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			start := time.Now()
			if err := eng.Store.Reindex(ctx); err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}

			stats := eng.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Reindexed %d examples with %s (dim %d) in %v\n",
				stats.TotalRecorded, stats.EmbeddingModel, stats.Dimension, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
