package main

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/sgx-labs/obsidianrag/internal/mcp"
)

func mcpCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Long: `Runs the obsidianrag MCP server on stdio, exposing the full vault tool
surface (list_notes, read_note, semantic_query, create_note, ...) to any
MCP-speaking client.

Reads OBSIDIAN_VAULT_PATH (or --vault) for the vault root.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mcpserver.Version = Version
			return mcpserver.Serve(watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Reindex automatically as files change in the vault")
	return cmd
}
