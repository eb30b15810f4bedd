package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sgx-labs/obsidianrag/internal/config"
	"github.com/sgx-labs/obsidianrag/internal/embedding"
	"github.com/sgx-labs/obsidianrag/internal/indexer"
	"github.com/sgx-labs/obsidianrag/internal/retriever"
	"github.com/sgx-labs/obsidianrag/internal/store"
)

// resolveVaultPath applies the --vault flag, then OBSIDIAN_VAULT_PATH, then
// the current directory, matching spec.md §9's vault-resolution order.
func resolveVaultPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("OBSIDIAN_VAULT_PATH"); v != "" {
		return v
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

// resources bundles every component a CLI command needs to touch the
// store, built once per invocation and closed by the caller.
type resources struct {
	cfg      *config.Config
	db       *store.DB
	embedder embedding.Provider
	retr     *retriever.Engine
	ix       *indexer.Indexer
}

func (r *resources) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// openResources loads config, opens the vector store, and wires an
// embedding provider (falling back to keyword-only mode on failure), the
// same sequence internal/mcp.Serve uses to come up.
func openResources(vaultPath string) (*resources, error) {
	cfg, err := config.Load(vaultPath)
	if err != nil {
		return nil, userError("Could not resolve a vault", err.Error())
	}

	provCfg := embedding.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	}
	if provCfg.Provider == "" || provCfg.Provider == "ollama" {
		if url, uerr := config.OllamaURLFromEnv(provCfg.BaseURL); uerr == nil {
			provCfg.BaseURL = url
		}
	}
	embedder, embErr := embedding.NewProvider(provCfg)
	if embErr != nil {
		slog.Warn("embedding provider unavailable, falling back to keyword-only mode", "error", embErr)
		embedder = nil
	}

	dims := cfg.Embedding.Dimensions
	if embedder != nil {
		dims = embedder.Dimensions()
	}
	if dims <= 0 {
		dims = 768
	}
	db, err := store.Open(cfg.DBPath(), dims)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	retrCfg := retriever.Config{
		BM25Weight:   cfg.Retriever.BM25Weight,
		VectorWeight: cfg.Retriever.VectorWeight,
		BM25K:        cfg.Retriever.BM25K,
		VectorK:      cfg.Retriever.VectorK,
		RerankTopN:   retriever.DefaultConfig().RerankTopN,
	}
	retr := retriever.New(db, embedder, retrCfg, nil)
	if err := retr.Rebuild(); err != nil {
		slog.Warn("BM25 rebuild failed", "error", err)
	}

	ix := indexer.New(cfg, db, embedder, retr)

	return &resources{cfg: cfg, db: db, embedder: embedder, retr: retr, ix: ix}, nil
}
