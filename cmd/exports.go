package cmd

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/metadata"
)

var exportsImage imageFlags

func init() {
	exportsCmd.Flags().StringVar(&exportsImage.image, "image", "", "Path to the mapped image (flat RVA layout)")
	exportsCmd.Flags().StringVar(&exportsImage.layout, "layout", "", "Path to the JSON export and vtable fixup layout")
	_ = exportsCmd.MarkFlagRequired("image")
	_ = exportsCmd.MarkFlagRequired("layout")
	rootCmd.AddCommand(exportsCmd)
}

var exportsCmd = &cobra.Command{
	Use:   "exports [snapshot]",
	Short: "List unmanaged exports and the methods their thunks call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		m, listener, err := openModule(args[0])
		if err != nil {
			return err
		}
		r, closeImage, err := exportsImage.open()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeImage(); err == nil {
				err = cerr
			}
		}()

		infos := r.Infos()
		tokens := make([]metadata.Token, 0, len(infos))
		for tok := range infos {
			tokens = append(tokens, tok)
		}
		slices.SortFunc(tokens, func(a, b metadata.Token) int { return cmp.Compare(a.Uint32(), b.Uint32()) })

		w := cmd.OutOrStdout()
		for _, tok := range tokens {
			name := "<unresolved>"
			if mem, ok := m.Lookup(tok); ok {
				name = kindOf(mem) + " " + member.NameOf(mem)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", infos[tok], tok, name)
		}
		return finish(w, m, listener)
	},
}
