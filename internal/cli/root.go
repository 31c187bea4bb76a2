/*
Package cli implements the casebank command line.

Every command loads settings the same way: the config file (JSON, YAML or
TOML, defaults when missing), then CASEBANK_* environment variables
(optionally from a .env file), then command-line flags.
*/
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/casebank/internal/config"
	"github.com/khanglvm/casebank/internal/engine"
	"github.com/khanglvm/casebank/internal/version"
)

// Options are the flags shared by every command.
type Options struct {
	ConfigPath string
	EnvFile    string
	DataDir    string
}

// NewRootCmd builds the casebank command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "casebank",
		Short: "Retrieval and learning engine for test-case generation",
		Long: `casebank remembers the test cases generated for past user stories and
serves the most relevant ones as few-shot examples for new stories.

Each retrieval ranks stored examples by five signals:
  • semantic  - embedding similarity
  • domain    - same functional area
  • keyword   - shared vocabulary
  • quality   - user ratings
  • recency   - newer examples first

Ratings and corrections feed back into later rankings.`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (default ~/.casebank.json)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "Environment file with CASEBANK_* overrides")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "Data directory (overrides config)")

	cmd.AddCommand(NewServeCmd(opts))
	cmd.AddCommand(NewRetrieveCmd(opts))
	cmd.AddCommand(NewRecordCmd(opts))
	cmd.AddCommand(NewFeedbackCmd(opts))
	cmd.AddCommand(NewSeedCmd(opts))
	cmd.AddCommand(NewReindexCmd(opts))
	cmd.AddCommand(NewBenchmarkCmd(opts))
	cmd.AddCommand(NewLearningCmd(opts))
	cmd.AddCommand(NewConfigCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadSettings resolves settings from file, environment and flags.
func (o *Options) loadSettings() (*config.Settings, error) {
	if err := config.LoadEnvFile(o.EnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadOrCreate(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	s := cfg.Settings
	if err := s.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	if o.DataDir != "" {
		s.DataDir = o.DataDir
	}
	return s, nil
}

// openEngine loads settings and opens the engine on them.
func (o *Options) openEngine(ctx context.Context) (*engine.Engine, error) {
	s, err := o.loadSettings()
	if err != nil {
		return nil, err
	}
	eng, err := engine.Open(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return eng, nil
}

// configPath returns the explicit config path or the default one.
func (o *Options) configPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	return config.GetDefaultConfigPath()
}
