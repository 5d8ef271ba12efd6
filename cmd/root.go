package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentic-research/babelpatch/api"
	"github.com/agentic-research/babelpatch/internal/config"
	"github.com/agentic-research/babelpatch/internal/logging"
	"github.com/agentic-research/babelpatch/internal/manifest"
)

var (
	configPath string
	verbosity  int

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "babelpatch",
	Short:         "Generate a statically linkable OpenBabel source tree",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, c)
		if err := c.Check(); err != nil {
			return err
		}
		cfg = c
		logger = logging.New(cmd.ErrOrStderr(), cfg.Verbosity)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to babelpatch.toml (default: ./"+config.FileName+" if present)")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.StringP("manifest", "m", "", "Manifest file (.hcl or .json); empty uses the built-in OpenBabel manifest")
	pf.StringP("upstream", "u", "", "Upstream OpenBabel checkout")
	pf.StringP("work", "w", "", "Working root to (re)generate")
}

// applyFlags overlays explicitly set flags on the loaded configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	str("manifest", &c.Manifest)
	str("upstream", &c.Upstream)
	str("work", &c.Work)
	str("no-match", &c.NoMatch)
	str("ledger", &c.Ledger)
	boolean("validate", &c.Validate)
	boolean("strict", &c.Strict)
	boolean("allow-shadowing", &c.AllowShadowing)
	boolean("compile", &c.Compile.Enabled)
	if flags.Changed("verbose") {
		c.Verbosity = verbosity
	}
}

func loadManifest() (*api.Manifest, error) {
	return manifest.Load(cfg.Manifest)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
