package cmd

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/applytrack/internal/tools/application_tools"
	"github.com/teemow/applytrack/internal/tracker"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
The tools are registered against an unconnected service and introspected,
so the output always matches the tool definitions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := buildToolsMarkdown()
			if err != nil {
				return err
			}
			if outputFile == "" {
				fmt.Fprint(cmd.OutOrStdout(), markdown)
				return nil
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// buildToolsMarkdown registers every tool, including the write tools, and
// renders their definitions. Handlers never run, so no service is needed.
func buildToolsMarkdown() (string, error) {
	mcpSrv := mcpserver.NewMCPServer("applytrack", version,
		mcpserver.WithToolCapabilities(true),
	)
	deps := application_tools.Deps{Workflows: (*tracker.Service)(nil)}
	if err := application_tools.RegisterApplicationTools(mcpSrv, deps, false); err != nil {
		return "", fmt.Errorf("failed to register application tools: %w", err)
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}
	return generateToolsMarkdown(tools), nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools available when running applytrack as an MCP server. ")
	sb.WriteString("This file is generated by `applytrack generate-docs`; do not edit it by hand.\n\n")

	sb.WriteString("## Owners\n\n")
	sb.WriteString("Tools act for the owner of the connection: the subject of the bearer token over HTTP, or the `--owner` flag over stdio. ")
	sb.WriteString("The owner is never a tool argument, so one user cannot act on another user's applications.\n\n")

	byCategory := groupToolsByCategory(tools)
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		categoryTools := byCategory[category]
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range categoryTools {
			sb.WriteString(generateToolMarkdown(tool))
		}
	}

	return sb.String()
}

func groupToolsByCategory(tools []mcp.Tool) map[string][]mcp.Tool {
	categories := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := categoryOf(tool.Name)
		categories[category] = append(categories[category], tool)
	}
	return categories
}

// categoryOf groups tools by the prefix before the first underscore.
func categoryOf(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "applications":
		return "Application Tools"
	case "inbox":
		return "Inbox Tools"
	case "accounts":
		return "Account Tools"
	default:
		return "Other"
	}
}

// generateToolMarkdown renders one tool with its arguments as a table.
func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) == 0 {
		sb.WriteString("No arguments.\n\n")
		return sb.String()
	}

	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("| Argument | Type | Required | Description |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, name := range names {
		prop, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}
		required := "no"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "yes"
		}
		desc, _ := prop["description"].(string)
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", name, propertyType(prop), required, strings.ReplaceAll(desc, "|", "\\|"))
	}
	sb.WriteString("\n")

	return sb.String()
}

func propertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
