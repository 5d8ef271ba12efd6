package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/babelpatch/internal/ledger"
	"github.com/agentic-research/babelpatch/internal/pipeline"
	"github.com/agentic-research/babelpatch/internal/rules"
	"github.com/agentic-research/babelpatch/internal/worktree"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Select, patch and hand off the upstream sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var l *ledger.Ledger
		if cfg.Ledger != "" {
			var err error
			if l, err = ledger.Open(cfg.Ledger); err != nil {
				return err
			}
			defer func() { _ = l.Close() }()
		}

		report, id, err := generate(cmd.Context(), l)
		if report != nil {
			printReport(cmd.OutOrStdout(), report, id)
		}
		return err
	},
}

func init() {
	f := runCmd.Flags()
	f.String("no-match", "", "Policy for rules that match nothing: ignore, warn or fail")
	f.Bool("validate", true, "Reject patches that add syntax errors")
	f.Bool("strict", false, "Fail when patched files still reference plugin machinery")
	f.Bool("allow-shadowing", false, "Let a later plugin shadow an earlier one with the same id")
	f.Bool("compile", false, "Compile the working tree into a static archive")
	f.String("ledger", "", "SQLite ledger recording each run")
	rootCmd.AddCommand(runCmd)
}

// generate runs the pipeline once under the working-root lock and records
// the outcome in l when it is non-nil. The returned id is 0 when nothing was
// recorded.
func generate(ctx context.Context, l *ledger.Ledger) (*pipeline.Report, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	policy, err := rules.ParseNoMatchPolicy(cfg.NoMatch)
	if err != nil {
		return nil, 0, err
	}
	m, err := loadManifest()
	if err != nil {
		return nil, 0, err
	}

	lock, err := worktree.Acquire(cfg.Work)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = lock.Release() }()

	name := cfg.Manifest
	if name == "" {
		name = "builtin:openbabel"
	}
	report, runErr := pipeline.Run(ctx, pipeline.Options{
		Manifest:       m,
		ManifestName:   name,
		Upstream:       osfs.New(cfg.Upstream),
		Tree:           worktree.Open(cfg.Work, m.IncludeDir),
		WorkRoot:       cfg.Work,
		Policy:         policy,
		Validate:       cfg.Validate,
		Strict:         cfg.Strict,
		AllowShadowing: cfg.AllowShadowing,
		Compile:        cfg.Compile,
		Logger:         logger,
	})
	if l == nil {
		return report, 0, runErr
	}

	id, err := l.Record(ledger.Run{
		Started:     report.Started,
		Manifest:    name,
		Upstream:    cfg.Upstream,
		Work:        cfg.Work,
		State:       string(report.State),
		Files:       report.Digests,
		Hits:        report.Hits,
		Diagnostics: report.Diagnostics,
	})
	if err != nil && runErr == nil {
		runErr = fmt.Errorf("record run: %w", err)
	}
	return report, id, runErr
}

func printReport(w io.Writer, r *pipeline.Report, id int64) {
	fmt.Fprintf(w, "state: %s\n", r.State)
	fmt.Fprintf(w, "copied: %d files\n", len(r.Copied))

	names := make([]string, 0, len(r.Hits))
	for name := range r.Hits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-48s %d\n", name, r.Hits[name])
	}
	for _, u := range r.Unmatched {
		fmt.Fprintf(w, "unmatched: %s (%s)\n", u.Rule, u.Scope)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "%s: [%s] %s %s\n", d.Severity, d.Source, d.File, d.Message)
	}
	if r.Archive != "" {
		fmt.Fprintf(w, "archive: %s\n", r.Archive)
	}
	if id != 0 {
		fmt.Fprintf(w, "ledger run: %d\n", id)
	}
}
