package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/obsidianrag/internal/cli"
	"github.com/sgx-labs/obsidianrag/internal/config"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Point obsidianrag at a vault and build its index (start here)",
		Long: `Writes a default vault.yaml (if one doesn't already exist) and runs a
full index build.

Run this from inside your vault, or pass --vault.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the index even if one already exists")
	return cmd
}

func runInit(force bool) error {
	cli.Banner(Version)
	fmt.Println()

	vaultPath := resolveVaultPath("")
	if vaultPath == "" {
		return userError("No vault path given", "pass --vault /path/to/vault or set OBSIDIAN_VAULT_PATH")
	}

	cfg, err := config.Load(vaultPath)
	if err != nil {
		return userError("That doesn't look like a usable vault directory", err.Error())
	}

	vaultYAML := cfg.VaultYAMLPath()
	if _, statErr := os.Stat(vaultYAML); statErr != nil {
		if err := config.WriteDefault(cfg.VaultPath); err != nil {
			return fmt.Errorf("write vault.yaml: %w", err)
		}
		fmt.Printf("  %sWrote%s %s\n", cli.Green, cli.Reset, cli.ShortenHome(vaultYAML))
	} else {
		fmt.Printf("  %s%s already exists, leaving it in place%s\n", cli.Dim, cli.ShortenHome(vaultYAML), cli.Reset)
	}

	fmt.Println("  Building the index...")
	if err := runIndex(force); err != nil {
		return err
	}

	fmt.Printf("  %sobsidianrag is ready.%s Run 'obsidianrag mcp' to start the MCP server,\n", cli.Bold, cli.Reset)
	fmt.Println("  or 'obsidianrag search \"your query\"' to try it from the command line.")
	cli.Footer()
	return nil
}
