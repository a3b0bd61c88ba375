package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/clrmeta/internal/graph"
	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/metadata"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [snapshot]",
	Short: "Answer metadata queries over MCP on stdio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, _, err := openModule(args[0])
		if err != nil {
			return err
		}
		t := &tools{mod: m, tree: graph.NewProjection(m, graph.WithLogger(logger), graph.WithCacheSize(cfg.Graph.CacheSize))}
		return server.ServeStdio(t.server())
	},
}

// tools answers MCP tool calls against one module.
type tools struct {
	mod  *member.Module
	tree *graph.Projection
}

func (t *tools) server() *server.MCPServer {
	s := server.NewMCPServer("clrmeta", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("lookup_token",
		mcp.WithDescription("Resolve a metadata token such as 0x02000002 or TypeDef:2 and describe the member"),
		mcp.WithString("token", mcp.Required(), mcp.Description("Raw or table qualified metadata token")),
	), t.lookupToken)

	s.AddTool(mcp.NewTool("list_types",
		mcp.WithDescription("List type definitions with their tokens"),
		mcp.WithString("namespace", mcp.Description("Only list types in this namespace")),
	), t.listTypes)

	s.AddTool(mcp.NewTool("custom_attributes",
		mcp.WithDescription("List the custom attributes attached to a member with their decoded arguments"),
		mcp.WithString("token", mcp.Required(), mcp.Description("Token of the attributed member")),
	), t.customAttributes)

	s.AddTool(mcp.NewTool("read_path",
		mcp.WithDescription("Read a file of the metadata tree, or list a directory"),
		mcp.WithString("path", mcp.Description("Tree path such as types/System.String/info; empty for the root")),
	), t.readPath)
	return s
}

func (t *tools) lookupToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arg, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tok, err := metadata.ParseToken(arg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := describe(t.tree, t.mod, tok)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (t *tools) listTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ns := req.GetString("namespace", "")
	var sb strings.Builder
	for _, td := range t.mod.AllTypes() {
		if ns != "" && td.Namespace() != ns {
			continue
		}
		fmt.Fprintf(&sb, "%s\t%s\n", td.Token(), td.FullName())
	}
	if sb.Len() == 0 {
		return mcp.NewToolResultText("no types"), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *tools) customAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arg, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tok, err := metadata.ParseToken(arg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mem, err := t.mod.Require(tok)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, ok := mem.(member.HasCustomAttributes)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s cannot carry custom attributes", kindOf(mem))), nil
	}

	var sb strings.Builder
	for _, ca := range owner.CustomAttributes() {
		sb.WriteString(formatAttribute(ca))
		sb.WriteByte('\n')
	}
	if sb.Len() == 0 {
		return mcp.NewToolResultText("no custom attributes"), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *tools) readPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	n, err := t.tree.GetNode(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !n.Mode.IsDir() {
		return mcp.NewToolResultText(string(n.Data)), nil
	}
	children, err := t.tree.ListChildren(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(children, "\n")), nil
}

// formatAttribute renders ca as Type(fixed..., Name = value...).
func formatAttribute(ca *member.CustomAttribute) string {
	args, ok := ca.Arguments()
	if !ok {
		return ca.String() + "(<undecodable>)"
	}
	parts := make([]string, 0, len(args.Fixed)+len(args.Named))
	for _, v := range args.Fixed {
		parts = append(parts, graph.FormatValue(v))
	}
	for _, n := range args.Named {
		parts = append(parts, n.Name+" = "+graph.FormatValue(n.Value))
	}
	return ca.String() + "(" + strings.Join(parts, ", ") + ")"
}
