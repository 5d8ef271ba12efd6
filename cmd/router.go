package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/logging"
	"github.com/agentic-research/babelpatch/internal/manifest"
	"github.com/agentic-research/babelpatch/internal/router"
)

var routerCmd = &cobra.Command{
	Use:   "router [category...]",
	Short: "Print the generated FindType routers",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		if err := manifest.Validate(m, cfg.AllowShadowing, logging.NewDiagnostics(logger)); err != nil {
			return err
		}

		want := make(map[string]bool, len(args))
		for _, a := range args {
			want[a] = true
		}
		found := 0
		for _, r := range router.GenerateAll(m.CxxNamespace, manifest.Routes(m)) {
			if len(want) > 0 && !want[r.Category.Name] {
				continue
			}
			found++
			fmt.Fprintf(cmd.OutOrStdout(), "// %s -> %s\n%s\n", r.Category.Name, r.Category.Host, r.Source())
		}
		if len(want) > 0 && found < len(want) {
			return perr.Newf(perr.ErrConfig, "unknown category in %v", args)
		}
		return nil
	},
}

var (
	traceFunc string
	traceIDs  []string
)

var traceCmd = &cobra.Command{
	Use:   "trace <file>...",
	Short: "Resolve ids through the dispatch function found in patched sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src []byte
		for _, a := range args {
			data, err := os.ReadFile(a)
			if err != nil {
				return perr.Wrapf(err, perr.ErrIO, "read %s", a)
			}
			src = append(src, data...)
			src = append(src, '\n')
		}

		chain, err := router.Parse(src, traceFunc)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: null guard=%t fallback=%t branches=%d\n",
			chain.Function, chain.NullGuard, chain.Fallback, len(chain.Branches))

		ids := traceIDs
		if len(ids) == 0 {
			for _, b := range chain.Branches {
				ids = append(ids, b.ID)
			}
		}
		for _, id := range ids {
			b, ok := chain.Resolve(id)
			class := b.Class
			if !ok {
				class = "nullptr"
			} else if class == "" {
				class = "?"
			}
			fmt.Fprintf(out, "  %-12s %-28s %s\n", id, b.Factory, class)
		}
		return nil
	},
}

func init() {
	traceCmd.Flags().StringVarP(&traceFunc, "func", "f", "OBFormat::FindType", "Dispatch function to trace")
	traceCmd.Flags().StringSliceVar(&traceIDs, "id", nil, "IDs to resolve (default: every branch)")
	rootCmd.AddCommand(routerCmd, traceCmd)
}
