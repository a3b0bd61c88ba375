package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentic-research/clrmeta/internal/member"
)

var dumpWarm bool

func init() {
	dumpCmd.Flags().BoolVar(&dumpWarm, "warm", false, "Resolve every member before printing")
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump [snapshot]",
	Short: "Print the module, its assembly and every type with its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, listener, err := openModule(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		if dumpWarm {
			n, err := m.ResolveAll(cmd.Context(), cfg.Resolve.Workers)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "resolved %d members\n", n)
		}

		bold := color.New(color.Bold)
		bold.Fprintf(w, "module %s {%s}\n", m.Name(), m.Mvid())
		if a, ok := m.Assembly(); ok {
			bold.Fprintf(w, "assembly %s\n", a.FullName())
		}
		for _, ref := range m.AssemblyReferences() {
			fmt.Fprintf(w, "  references %s\n", ref.FullName())
		}
		fmt.Fprintln(w)

		for _, t := range m.TopLevelTypes() {
			dumpType(w, t, 0)
		}
		return finish(w, m, listener)
	},
}

func dumpType(w io.Writer, t *member.TypeDefinition, depth int) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	indent := strings.Repeat("  ", depth)

	cyan.Fprintf(w, "%s%s", indent, t.FullName())
	if base := t.BaseType(); base != nil {
		fmt.Fprintf(w, " : %s", member.NameOf(base))
	}
	fmt.Fprintln(w)

	for _, f := range t.Fields().Items() {
		green.Fprintf(w, "%s  field  %s\n", indent, f)
	}
	for _, md := range t.Methods().Items() {
		yellow.Fprintf(w, "%s  method %s\n", indent, md)
	}
	for _, p := range t.Properties().Items() {
		fmt.Fprintf(w, "%s  property %s\n", indent, member.NameOf(p))
	}
	for _, e := range t.Events().Items() {
		fmt.Fprintf(w, "%s  event %s\n", indent, member.NameOf(e))
	}
	for _, nested := range t.NestedTypes().Items() {
		dumpType(w, nested, depth+1)
	}
}
