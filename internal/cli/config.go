package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanglvm/casebank/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or show casebank configuration",
	}

	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigShowCmd(opts))
	return cmd
}

// newConfigInitCmd writes a config file with default settings.
func newConfigInitCmd(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Long: `Write the default settings to the config file. The format follows the
extension: .json, .yaml/.yml or .toml.`,
		Example: `  casebank config init
  casebank --config ./casebank.yaml config init`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s\n💡 Use --force to overwrite (the old file is kept as %s.bak)", path, path)
			}

			if err := config.Save(config.NewConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote default config to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")
	return cmd
}

// newConfigShowCmd prints the effective settings after env and flag overrides.
func newConfigShowCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.loadSettings()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), &config.Config{Settings: s})
		},
	}
}
