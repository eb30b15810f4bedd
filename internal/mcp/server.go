// Package mcp implements the MCP server for obsidianrag: it wires every
// internal/ component into the vault's tool surface over
// mcp.NewServer/mcp.AddTool/mcp.ToolAnnotations and a stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/config"
	"github.com/sgx-labs/obsidianrag/internal/embedding"
	"github.com/sgx-labs/obsidianrag/internal/folder"
	"github.com/sgx-labs/obsidianrag/internal/guard"
	"github.com/sgx-labs/obsidianrag/internal/indexer"
	"github.com/sgx-labs/obsidianrag/internal/pathpolicy"
	"github.com/sgx-labs/obsidianrag/internal/resultkind"
	"github.com/sgx-labs/obsidianrag/internal/retriever"
	"github.com/sgx-labs/obsidianrag/internal/store"
	"github.com/sgx-labs/obsidianrag/internal/watcher"
	"github.com/sgx-labs/obsidianrag/internal/writepath"
)

const maxQueryLen = 10_000   // max chars accepted for a free-text search query
const maxBodyLen = 2_000_000 // ~2MB max note body accepted over MCP

// Version is set by the caller (cmd/obsidianrag) before calling Serve.
var Version = "dev"

// toolset bundles every component a tool handler dispatches to. Built once
// per Serve call and captured by every registered handler closure.
type toolset struct {
	cfg        *config.Config
	policy     *pathpolicy.Policy
	db         *store.DB
	embedder   embedding.Provider
	retr       *retriever.Engine
	ix         *indexer.Indexer
	wp         *writepath.WritePath
	noteCache  *cache.NoteNameCache
	skillCache *cache.SkillCache
	guard      *guard.Screen
	watch      *watcher.Watcher
}

// Serve resolves configuration from OBSIDIAN_VAULT_PATH, wires every
// component, and runs the MCP server on stdio until the transport closes.
func Serve(watch bool) error {
	vaultPath := os.Getenv("OBSIDIAN_VAULT_PATH")
	cfg, err := config.Load(vaultPath)
	if err != nil {
		return fmt.Errorf("config_error: %w", err)
	}

	forbidden, err := pathpolicy.LoadForbiddenPatternsFile(cfg.ForbiddenPathsFile())
	if err != nil {
		return fmt.Errorf("load forbidden paths: %w", err)
	}
	policy, err := pathpolicy.New(cfg.VaultPath, forbidden, cfg.PrivatePaths)
	if err != nil {
		return err
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
		dims = 768 // nomic-embed-text's native dimensionality, the configured default model
	}
	db, err := store.Open(cfg.DBPath(), dims)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer db.Close()

	retrCfg := retriever.Config{
		BM25Weight:   cfg.Retriever.BM25Weight,
		VectorWeight: cfg.Retriever.VectorWeight,
		BM25K:        cfg.Retriever.BM25K,
		VectorK:      cfg.Retriever.VectorK,
		RerankTopN:   retriever.DefaultConfig().RerankTopN,
	}
	retr := retriever.New(db, embedder, retrCfg, nil)
	if err := retr.Rebuild(); err != nil {
		slog.Warn("initial BM25 rebuild failed", "error", err)
	}

	ix := indexer.New(cfg, db, embedder, retr)
	if _, err := ix.EnsureIndex(false); err != nil {
		slog.Warn("initial index build failed, serving with whatever the store already holds", "error", err)
	}

	noteCache := cache.NewNoteNameCache(cfg.VaultPath, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	skillCache := cache.NewSkillCache()
	guardScreen := guard.New(cfg.VaultPath)

	picker := writepath.FolderPicker(func(content string) (string, bool) {
		if cands, err := folder.Suggest(retr, cfg.VaultPath, content, 5, 1); err == nil && len(cands) > 0 {
			return cands[0].Folder, true
		}
		if kw := folder.SuggestByKeyword(content); len(kw) > 0 {
			return kw[0].Folder, true
		}
		return "", false
	})
	wp := writepath.New(policy, cfg.VaultPath, cfg.TemplatesFolder, noteCache, picker)

	ts := &toolset{
		cfg: cfg, policy: policy, db: db, embedder: embedder, retr: retr,
		ix: ix, wp: wp, noteCache: noteCache, skillCache: skillCache, guard: guardScreen,
	}

	if watch {
		w, err := watcher.New(cfg, ix, noteCache)
		if err != nil {
			slog.Warn("live reindex watcher unavailable", "error", err)
		} else {
			if err := w.Start(); err != nil {
				slog.Warn("live reindex watcher failed to start", "error", err)
			} else {
				ts.watch = w
				defer w.Stop()
			}
		}
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "obsidianrag", Version: Version}, nil)
	ts.registerTools(server)
	return server.Run(context.Background(), &mcp.StdioTransport{})
}

func (ts *toolset) registerTools(server *mcp.Server) {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}
	boolPtr := func(b bool) *bool { return &b }
	writeNonDestructive := &mcp.ToolAnnotations{DestructiveHint: boolPtr(false), IdempotentHint: true}
	writeDestructive := &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_notes",
		Description: "List markdown notes in the vault, optionally scoped to a folder.\n\nArgs:\n  folder: Vault-relative folder (default: vault root)\n  recurse: Include subfolders (default true)\n\nReturns a list of vault-relative note paths.",
		Annotations: readOnly,
	}, ts.handleListNotes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_note",
		Description: "Read a note's full content by name or vault-relative path.\n\nArgs:\n  name: Note name or path (e.g. 'Projects/API Redesign' or 'API Redesign.md')\n\nReturns the note's raw markdown, front matter included.",
		Annotations: readOnly,
	}, ts.handleReadNote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_text",
		Description: "Literal keyword search over note titles and bodies (not semantic — use semantic_query for that).\n\nArgs:\n  text: Search text\n  folder: Restrict to a vault-relative folder (optional)\n  titles_only: Match only against note titles/filenames (default false)\n\nReturns matching notes with snippets.",
		Annotations: readOnly,
	}, ts.handleSearchText)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_by_date",
		Description: "Find notes created or modified within a date range.\n\nArgs:\n  from: Start date, YYYY-MM-DD\n  to: End date, YYYY-MM-DD (default: today)\n\nReturns matching notes with their created/modified dates.",
		Annotations: readOnly,
	}, ts.handleSearchByDate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "move_note",
		Description: "Move or rename a note.\n\nArgs:\n  src: Current vault-relative path\n  dst: New vault-relative path\n  create_parents: Create destination folders if missing (default true)\n\nReturns confirmation.",
		Annotations: writeNonDestructive,
	}, ts.handleMoveNote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "random_concept",
		Description: "Return a random note, optionally scoped to a folder. Use this for serendipitous review or to surface forgotten notes.\n\nArgs:\n  folder: Vault-relative folder to sample from (optional)\n\nReturns one note's path and content.",
		Annotations: readOnly,
	}, ts.handleRandomConcept)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_note",
		Description: "Create a new markdown note in the vault.\n\nArgs:\n  title: Note title\n  content: Body markdown (front matter in the body, if any, is merged in)\n  folder: Destination folder (optional — auto-suggested from content if omitted)\n  tags: Comma-separated tags (optional)\n  template: Template name under the templates folder (optional)\n  agent: Writer attribution stored in front matter (optional)\n\nReturns the created note's vault-relative path.",
		Annotations: writeNonDestructive,
	}, ts.handleCreateNote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "append_to_note",
		Description: "Append content to an existing note.\n\nArgs:\n  name: Note name or path\n  content: Markdown to append\n  at_end: Append after the body rather than right after front matter (default true)\n\nReturns confirmation.",
		Annotations: writeNonDestructive,
	}, ts.handleAppendToNote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "append_to_section",
		Description: "Append content under a specific heading in a note.\n\nArgs:\n  name: Note name or path\n  section: Heading text to find (any level, case-insensitive)\n  content: Markdown to insert\n  create_if_missing: Create the section as a new level-2 heading if not found (default true)\n\nReturns confirmation.",
		Annotations: writeNonDestructive,
	}, ts.handleAppendToSection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "edit_note",
		Description: "Replace a note's full content. When the content has a front-matter block, preserves the created: date and sets updated: to today.\n\nArgs:\n  name: Note name or path\n  content: New full markdown content\n\nReturns confirmation.",
		Annotations: writeNonDestructive,
	}, ts.handleEditNote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_note",
		Description: "Delete a note from the vault.\n\nArgs:\n  name: Note name or path\n  confirm: Must be true for the note to be deleted; false refuses the deletion (default true)\n\nReturns confirmation.",
		Annotations: writeDestructive,
	}, ts.handleDeleteNote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_and_replace",
		Description: "Find and replace a literal string across notes.\n\nArgs:\n  find: Literal text to find\n  replace: Replacement text\n  folder: Restrict to a vault-relative folder (optional)\n  preview: Report hits without writing (default true)\n  limit: Max files to touch (default 100)\n\nReturns per-file hit counts.",
		Annotations: writeNonDestructive,
	}, ts.handleSearchAndReplace)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_templates",
		Description: "List available note templates.\n\nReturns template names under the vault's templates folder.",
		Annotations: readOnly,
	}, ts.handleListTemplates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_folder",
		Description: "Suggest a destination folder for a new note based on its content.\n\nArgs:\n  title: Proposed note title\n  content: Proposed note body\n  tags: Comma-separated tags (optional)\n\nReturns ranked folder candidates with confidence scores; falls back to a keyword heuristic if the embedding backend is unavailable.",
		Annotations: readOnly,
	}, ts.handleSuggestFolder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "semantic_query",
		Description: "Ask a natural-language question against the vault's hybrid (BM25 + vector) index.\n\nArgs:\n  question: Natural language question\n  metadata_filter: Comma-separated key=value pairs to filter by front-matter field (optional)\n\nReturns ranked passages with source notes.",
		Annotations: readOnly,
	}, ts.handleSemanticQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_vault",
		Description: "(Re)build the semantic index. Incremental by default.\n\nArgs:\n  force: Rebuild everything from scratch regardless of change detection (default false)\n\nReturns indexing statistics.",
		Annotations: writeDestructive,
	}, ts.handleIndexVault)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_connections",
		Description: "Find pairs of notes that are semantically similar but not yet linked.\n\nArgs:\n  threshold: Minimum cosine similarity (default 0.70)\n  limit: Max suggestions (default 10)\n  include_folders: Comma-separated folder prefixes to restrict to (optional)\n  exclude_mocs: Skip notes whose filename ends in MOC.md (default true)\n  min_words: Minimum word count for a chunk to be considered (default 150)\n\nReturns ranked unlinked-pair suggestions.",
		Annotations: readOnly,
	}, ts.handleSuggestConnections)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_skills",
		Description: "List agent skills defined in the vault's .agent(s)/skills directory.\n\nReturns skill name, description, and declared tools for each.",
		Annotations: readOnly,
	}, ts.handleListSkills)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_skill",
		Description: "Read a single skill's full definition.\n\nArgs:\n  name: Skill name (the containing folder name)\n\nReturns the skill's body (the SKILL.md text after its front matter).",
		Annotations: readOnly,
	}, ts.handleGetSkill)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_global_rules",
		Description: "Read the vault's global agent rules document (.agent(s)/REGLAS_GLOBALES.md).\n\nReturns the document's raw content.",
		Annotations: readOnly,
	}, ts.handleGetGlobalRules)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh_skill_cache",
		Description: "Invalidate the cached skill list so the next list_skills/get_skill call re-reads from disk.\n\nReturns confirmation.",
		Annotations: writeNonDestructive,
	}, ts.handleRefreshSkillCache)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_skill",
		Description: "Create a new skill from the standard SKILL.md scaffold.\n\nArgs:\n  name: Skill identifier (becomes the folder name, e.g. 'physics-teacher')\n  description: What the skill does\n  instructions: Main instructions, markdown\n  tools: Comma-separated tool names (default: read, edit, search, obsidian-mcp)\n  default_location: Default folder for notes this skill creates\n\nReturns the created skill's path. Fails with conflict if the skill already exists.",
		Annotations: writeNonDestructive,
	}, ts.handleGenerateSkill)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_skills",
		Description: "Validate every skill against the required SKILL.md structure (REGLAS_GLOBALES reference, editing golden-rule section).\n\nArgs:\n  apply: Apply the fixable corrections instead of only reporting (default false)\n\nReturns a per-skill issue report, plus what was fixed when apply=true.",
		Annotations: writeNonDestructive,
	}, ts.handleSyncSkills)
}

// textResult renders a plain text MCP tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// errResult renders a *resultkind.Error the way every tool wrapper
// stringifies a failed core-operation Result, so every tool's error
// surface is consistent regardless of which core package produced it.
func errResult(err *resultkind.Error) *mcp.CallToolResult {
	return textResult("error: " + err.Error())
}

func clampBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func clampInt(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
