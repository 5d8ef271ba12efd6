package cmd

import (
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/babelpatch/internal/logging"
	"github.com/agentic-research/babelpatch/internal/manifest"
	"github.com/agentic-research/babelpatch/internal/router"
	"github.com/agentic-research/babelpatch/internal/writeback"
)

var (
	bindingsPkg string
	bindingsOut string
)

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "Generate Go constants for every id the routers resolve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		if err := manifest.Validate(m, cfg.AllowShadowing, logging.NewDiagnostics(logger)); err != nil {
			return err
		}
		src, err := router.GoBindings(bindingsPkg, manifest.Routes(m))
		if err != nil {
			return err
		}
		if bindingsOut == "" || bindingsOut == "-" {
			_, err = cmd.OutOrStdout().Write(src)
			return err
		}
		abs, err := filepath.Abs(bindingsOut)
		if err != nil {
			return err
		}
		return writeback.WriteFile(osfs.New(filepath.Dir(abs)), filepath.Base(abs), src)
	},
}

func init() {
	bindingsCmd.Flags().StringVar(&bindingsPkg, "package", "babelids", "Go package name")
	bindingsCmd.Flags().StringVarP(&bindingsOut, "output", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(bindingsCmd)
}
