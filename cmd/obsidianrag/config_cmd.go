package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/obsidianrag/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit vault.yaml",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveVaultPath(""))
			if err != nil {
				return err
			}
			fmt.Printf("vault_path:        %s\n", cfg.VaultPath)
			fmt.Printf("templates_folder:  %s\n", cfg.TemplatesFolder)
			fmt.Printf("private_paths:     %v\n", cfg.PrivatePaths)
			fmt.Printf("excluded_folders:  %v\n", cfg.ExcludedFolders)
			fmt.Printf("excluded_patterns: %v\n", cfg.ExcludedPatterns)
			fmt.Printf("embedding:         %s/%s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
			fmt.Printf("retriever:         bm25=%.2f vector=%.2f (k=%d/%d)\n",
				cfg.Retriever.BM25Weight, cfg.Retriever.VectorWeight, cfg.Retriever.BM25K, cfg.Retriever.VectorK)
			fmt.Printf("max_results:       %d\n", cfg.MaxResults)
			fmt.Printf("cache_ttl_seconds: %d\n", cfg.CacheTTLSeconds)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the path to vault.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveVaultPath(""))
			if err != nil {
				return err
			}
			fmt.Println(cfg.VaultYAMLPath())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open vault.yaml in $EDITOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveVaultPath(""))
			if err != nil {
				return err
			}
			path := cfg.VaultYAMLPath()
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				fmt.Println("No vault.yaml found. Generating default...")
				if err := config.WriteDefault(cfg.VaultPath); err != nil {
					return err
				}
			}
			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vi"
			}
			fmt.Printf("Opening %s in %s...\n", path, editor)
			return runEditor(editor, path)
		},
	})

	return cmd
}

func runEditor(editor, path string) error {
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
