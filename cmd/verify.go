package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/ledger"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the pipeline twice and check both runs produce identical trees",
	Long: `verify regenerates the working tree twice from scratch, records both runs
in the ledger and compares their per-file digests. Any difference is an error.
Without a configured ledger a temporary one is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Ledger
		if path == "" {
			dir, err := os.MkdirTemp("", "babelpatch-verify-")
			if err != nil {
				return perr.Wrap(err, perr.ErrIO, "create temp ledger")
			}
			defer func() { _ = os.RemoveAll(dir) }()
			path = filepath.Join(dir, "ledger.db")
		}
		l, err := ledger.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = l.Close() }()

		var ids [2]int64
		for i := range ids {
			if _, ids[i], err = generate(cmd.Context(), l); err != nil {
				return fmt.Errorf("run %d: %w", i+1, err)
			}
		}

		changes, err := l.Compare(ids[0], ids[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range changes {
			fmt.Fprintf(out, "differs: %s (%.12s -> %.12s)\n", c.Path, c.Before, c.After)
		}
		if len(changes) > 0 {
			return perr.Newf(perr.ErrValidation, "runs %d and %d differ in %d file(s)", ids[0], ids[1], len(changes))
		}
		fmt.Fprintf(out, "runs %d and %d are identical\n", ids[0], ids[1])
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("ledger", "", "SQLite ledger recording both runs")
	rootCmd.AddCommand(verifyCmd)
}
