package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/obsidianrag/internal/cli"
)

func searchCmd() *cobra.Command {
	var (
		jsonOut bool
		folder  string
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the vault from the command line",
		Long: `Runs the same hybrid (BM25 + dense, RRF-fused) retrieval the MCP
semantic_query tool uses, and prints the top matches.

Example:
  obsidianrag search "authentication approach"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(strings.Join(args, " "), folder, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&folder, "folder", "", "Restrict results to a vault-relative folder")
	return cmd
}

func runSearch(query, folder string, jsonOut bool) error {
	if strings.TrimSpace(query) == "" {
		return userError("Empty search query", `Provide a search term: obsidianrag search "your query"`)
	}
	res, err := openResources(resolveVaultPath(""))
	if err != nil {
		return err
	}
	defer res.Close()

	chunks, err := res.retr.Retrieve(query, nil)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if folder != "" {
		prefix := strings.TrimSuffix(folder, "/") + "/"
		filtered := chunks[:0]
		for _, c := range chunks {
			rel, relErr := filepath.Rel(res.cfg.VaultPath, c.Source)
			if relErr != nil {
				continue
			}
			if strings.HasPrefix(filepath.ToSlash(rel), prefix) {
				filtered = append(filtered, c)
			}
		}
		chunks = filtered
	}

	if jsonOut {
		data, _ := json.MarshalIndent(chunks, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(chunks) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	if res.embedder == nil {
		fmt.Printf("  %s(keyword search only — no embedding backend available)%s\n\n", cli.Dim, cli.Reset)
	}
	for i, c := range chunks {
		fmt.Printf("%s%d. %s%s  (score %.3f)\n", cli.Bold, i+1, c.Source, cli.Reset, c.Score)
		if c.Heading != "" {
			fmt.Printf("   %s# %s%s\n", cli.Dim, c.Heading, cli.Reset)
		}
		fmt.Printf("   %s\n\n", snippetFor(c.Text))
	}
	return nil
}

func snippetFor(text string) string {
	const maxLen = 220
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
