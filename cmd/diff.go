package cmd

import (
	"fmt"
	"io"
	"path"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/agentic-research/babelpatch/internal/worktree"
)

var diffContext int

var diffCmd = &cobra.Command{
	Use:   "diff [path...]",
	Short: "Show unified diffs between upstream and the working tree",
	Long: `diff compares every file of the working tree with its upstream
counterpart. Files that only exist in the working tree (the glue unit and the
compilation database) are listed as new. Paths are relative to the working
root and restrict the output when given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		tree := worktree.Open(cfg.Work, m.IncludeDir)
		return writeDiff(cmd.OutOrStdout(), osfs.New(cfg.Upstream), tree, args, diffContext)
	},
}

func init() {
	diffCmd.Flags().IntVarP(&diffContext, "context", "C", 3, "Lines of context")
	rootCmd.AddCommand(diffCmd)
}

// writeDiff prints one unified diff per changed file in tree, in path order.
func writeDiff(w io.Writer, upstream billy.Filesystem, tree *worktree.Tree, only []string, context int) error {
	files := only
	if len(files) == 0 {
		var err error
		if files, err = tree.Files(); err != nil {
			return err
		}
	}

	for _, f := range files {
		f = path.Clean(f)
		after, err := tree.ReadFile(f)
		if err != nil {
			return err
		}
		before, err := util.ReadFile(upstream, f)
		if err != nil {
			fmt.Fprintf(w, "new file: %s\n", f)
			continue
		}
		if string(before) == string(after) {
			continue
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(before)),
			B:        difflib.SplitLines(string(after)),
			FromFile: "a/" + f,
			ToFile:   "b/" + f,
			Context:  context,
		})
		if err != nil {
			return fmt.Errorf("diff %s: %w", f, err)
		}
		fmt.Fprint(w, text)
	}
	return nil
}
