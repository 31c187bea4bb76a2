package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/khanglvm/casebank/internal/engine"
	"github.com/khanglvm/casebank/internal/mcp"
	"github.com/khanglvm/casebank/internal/seed"
)

// NewServeCmd creates the 'serve' command for running the MCP server.
//
// This is the main command that exposes the casebank tools via stdio transport:
// - casebank_retrieve, casebank_record, casebank_feedback, casebank_stats
func NewServeCmd(opts *Options) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the casebank MCP server using stdio transport.

This server exposes 4 tools to AI clients:
  • casebank_retrieve - Rank past examples for a new user story
  • casebank_record   - Store the test cases generated for a story
  • casebank_feedback - Rate and correct recorded test cases
  • casebank_stats    - Report learning statistics

When seeds.dir is configured, sample files there are ingested on startup
and watched for changes while the server runs.`,
		Example: `  # Run directly
  casebank serve

  # Add to Claude Code
  claude mcp add casebank -- casebank serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, !noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the seed directory")
	return cmd
}

// runServe starts the MCP server with stdio transport and signal handling.
// Implements graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
func runServe(parent context.Context, opts *Options, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	eng, err := opts.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	watcher, err := startSeeds(ctx, eng, watch)
	if err != nil {
		// Seeds are optional; the server still works without them
		log.Printf("Warning: seed directory unavailable: %v", err)
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	server := mcp.NewServer(eng)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// startSeeds ingests the configured seed directory and, when asked, watches it.
// It returns a nil watcher when no seed directory is configured.
func startSeeds(ctx context.Context, eng *engine.Engine, watch bool) (*seed.Watcher, error) {
	dir, err := eng.Settings.ResolvedSeedDir()
	if err != nil || dir == "" {
		return nil, err
	}
	patterns := eng.Settings.Seeds.Patterns

	res, err := seed.ScanDir(ctx, eng.Store, dir, patterns)
	log.Printf("Seeded from %s: %d added, %d skipped, %d failed", dir, res.Added, res.Skipped, res.Failed)
	if err != nil {
		log.Printf("Warning: seeding errors: %v", err)
	}

	if !watch {
		return nil, nil
	}

	w, err := seed.NewWatcher(eng.Store, dir, patterns)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}
