package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/cli"
	"github.com/sgx-labs/obsidianrag/internal/watcher"
)

func indexCmd() *cobra.Command {
	var force, watch bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the vault and build or refresh the search index",
		Long: `Walks the vault for markdown files, splits and embeds changed notes, and
updates the vector store. Without --force this is incremental: only new,
modified, or deleted notes since the last run are touched.

With --watch, stays running and reindexes automatically as files change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runIndex(force); err != nil {
				return err
			}
			if watch {
				return runIndexWatch()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the entire index from scratch")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and reindex as files change in the vault")
	return cmd
}

// runIndexWatch blocks on a live-reindex watcher until interrupted.
func runIndexWatch() error {
	res, err := openResources(resolveVaultPath(""))
	if err != nil {
		return err
	}
	defer res.Close()

	nc := cache.NewNoteNameCache(res.cfg.VaultPath, time.Duration(res.cfg.CacheTTLSeconds)*time.Second)
	w, err := watcher.New(res.cfg, res.ix, nc)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Stop()

	fmt.Printf("  %sWatching for changes — press Ctrl-C to stop%s\n\n", cli.Dim, cli.Reset)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

func runIndex(force bool) error {
	res, err := openResources(resolveVaultPath(""))
	if err != nil {
		return err
	}
	defer res.Close()

	stats, err := res.ix.EnsureIndex(force)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	fmt.Println()
	fmt.Printf("  %sIndex complete%s\n\n", cli.Bold, cli.Reset)
	if stats.IsIncremental {
		fmt.Printf("  Mode:      incremental\n")
		fmt.Printf("  New:       %d\n", stats.DocsNew)
		fmt.Printf("  Modified:  %d\n", stats.DocsModified)
		fmt.Printf("  Deleted:   %d\n", stats.DocsDeleted)
	} else {
		fmt.Printf("  Mode:      full rebuild\n")
		fmt.Printf("  Processed: %d\n", stats.DocsProcessed)
	}
	fmt.Printf("  Took:      %.2fs\n", stats.TimeSeconds)
	if res.embedder == nil {
		fmt.Printf("\n  %s(keyword-only — no embedding backend available)%s\n", cli.Dim, cli.Reset)
	}
	fmt.Println()
	return nil
}
