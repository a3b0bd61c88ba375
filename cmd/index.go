package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/agentic-research/clrmeta/internal/rowstore"
)

var indexOut string

func init() {
	indexCmd.Flags().StringVarP(&indexOut, "out", "o", "", "Database to write the relation index to (default: the snapshot)")
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index [snapshot]",
	Short: "Build the owner to children relation indices and store them as roaring bitmaps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := indexOut
		if out == "" {
			if isFixture(args[0]) {
				return errors.New("--out is required when indexing a JSON fixture")
			}
			out = args[0]
		}
		m, listener, err := openModule(args[0])
		if err != nil {
			return err
		}
		n, err := rowstore.FlushRelations(m, out)
		if err != nil {
			return errors.Wrapf(err, "write relations to %s", out)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Wrote %d relation rows to %s\n", n, out)
		return finish(w, m, listener)
	},
}
