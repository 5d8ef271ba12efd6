package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/babelpatch/internal/manifest"
)

var queryCmd = &cobra.Command{
	Use:   "query <jsonpath>",
	Short: "Evaluate a JSONPath selector against the manifest",
	Example: `  babelpatch query '$.plugins[?(@.category == "fingerprints")].id'
  babelpatch query '$.categories[*].base_class'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		res, err := manifest.Query(m, args[0])
		if err != nil {
			return err
		}
		for _, v := range res {
			fmt.Fprintln(cmd.OutOrStdout(), oj.JSON(v, &oj.Options{Sort: true}))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
