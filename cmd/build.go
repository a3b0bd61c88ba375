package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/rowstore"
)

func init() {
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build [fixture.json] [output.db]",
	Short: "Build a SQLite metadata snapshot from a JSON table fixture",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, output := args[0], args[1]
		if !isFixture(source) {
			return errors.Newf("%s: expected a .json fixture", source)
		}
		start := time.Now()

		store, err := openStore(source)
		if err != nil {
			return errors.Wrapf(err, "load %s", source)
		}
		// the snapshot is rewritten from scratch
		if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := rowstore.WriteSQLite(store, output); err != nil {
			return errors.Wrapf(err, "write %s", output)
		}

		rows := 0
		for _, t := range metadata.Tables() {
			rows += int(store.RowCount(t))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Built %s: %d rows in %v\n", output, rows, time.Since(start).Round(time.Millisecond))
		return nil
	},
}
