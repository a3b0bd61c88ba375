package cmd

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/clrmeta/internal/relvtab"
)

func init() {
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query [snapshot.db] [sql]",
	Short: "Run SQL against an indexed snapshot",
	Long: `Run SQL against a snapshot after "clrmeta index".

The relations table lists one (relation, owner, child) row per indexed
child, with owner and child as tokens:

  clrmeta query acme.db "SELECT child FROM relations WHERE owner = 'TypeDef:2'"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		s, err := relvtab.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.Close(); err == nil {
				err = cerr
			}
		}()

		rows, err := s.Query(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		line := make([]string, len(cols))
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, v := range vals {
				line[i] = v.String
				if !v.Valid {
					line[i] = "NULL"
				}
			}
			fmt.Fprintln(w, strings.Join(line, "\t"))
		}
		return rows.Err()
	},
}
