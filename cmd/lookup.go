package cmd

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentic-research/clrmeta/internal/graph"
	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/metadata"
)

func init() {
	rootCmd.AddCommand(lookupCmd)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [snapshot] [token...]",
	Short: "Resolve metadata tokens and describe the members behind them",
	Long: `Resolve metadata tokens and describe the members behind them.

Tokens are raw ("0x02000002") or table qualified ("TypeDef:2").`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, listener, err := openModule(args[0])
		if err != nil {
			return err
		}
		p := graph.NewProjection(m, graph.WithLogger(logger))
		w := cmd.OutOrStdout()
		red := color.New(color.FgRed)

		failed := 0
		for i, arg := range args[1:] {
			if i > 0 {
				fmt.Fprintln(w)
			}
			tok, err := metadata.ParseToken(arg)
			if err == nil {
				var text string
				if text, err = describe(p, m, tok); err == nil {
					fmt.Fprint(w, text)
					continue
				}
			}
			failed++
			red.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", arg, err)
		}
		if err := finish(w, m, listener); err != nil {
			return err
		}
		if failed > 0 {
			return errors.Newf("%d of %d tokens did not resolve", failed, len(args)-1)
		}
		return nil
	},
}

// describe renders the member behind tok, or the text of a user string
// token.
func describe(p *graph.Projection, m *member.Module, tok metadata.Token) (string, error) {
	if tok.Table == metadata.TableUserString {
		s, err := m.UserString(tok)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("kind: UserString\ntoken: %s\nvalue: %q\n", tok, s), nil
	}
	mem, err := m.Require(tok)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "kind: %s\n", kindOf(mem))
	if body, ok := p.Describe(mem); ok {
		sb.Write(body)
	} else {
		fmt.Fprintf(&sb, "token: %s\nname: %s\n", tok, member.NameOf(mem))
	}
	return sb.String(), nil
}

func kindOf(mem member.Member) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", mem), "*member.")
}
