package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/config"
	"github.com/sgx-labs/obsidianrag/internal/guard"
	"github.com/sgx-labs/obsidianrag/internal/pathpolicy"
	"github.com/sgx-labs/obsidianrag/internal/retriever"
	"github.com/sgx-labs/obsidianrag/internal/store"
	"github.com/sgx-labs/obsidianrag/internal/writepath"
)

// newTestToolset wires a minimal toolset against a temp vault with no
// embedding backend configured, exercising the keyword/BM25-only fallback
// paths every handler must support when the embedding backend is down.
func newTestToolset(t *testing.T) *toolset {
	t.Helper()
	vaultRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(vaultRoot, "Notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vaultRoot, "Notes", "hello.md"), []byte("---\ntitle: Hello\ncreated: 2024-01-01\n---\n\nHello world body.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(vaultRoot)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	policy, err := pathpolicy.New(cfg.VaultPath, nil, cfg.PrivatePaths)
	if err != nil {
		t.Fatalf("pathpolicy.New: %v", err)
	}

	db, err := store.OpenMemory(4)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	retr := retriever.New(db, nil, retriever.DefaultConfig(), nil)
	if err := retr.Rebuild(); err != nil {
		t.Fatalf("retr.Rebuild: %v", err)
	}

	noteCache := cache.NewNoteNameCache(cfg.VaultPath, time.Minute)
	skillCache := cache.NewSkillCache()
	guardScreen := guard.New(cfg.VaultPath)
	wp := writepath.New(policy, cfg.VaultPath, cfg.TemplatesFolder, noteCache, nil)

	return &toolset{
		cfg: cfg, policy: policy, db: db, retr: retr,
		wp: wp, noteCache: noteCache, skillCache: skillCache, guard: guardScreen,
	}
}


func TestHandleListNotes_ListsCreatedNote(t *testing.T) {
	ts := newTestToolset(t)
	res, _, err := ts.handleListNotes(context.Background(), nil, listNotesInput{})
	if err != nil {
		t.Fatalf("handleListNotes: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text != "Notes/hello.md" {
		t.Fatalf("unexpected listing: %q", text)
	}
}

func TestHandleReadNote_ByName(t *testing.T) {
	ts := newTestToolset(t)
	res, _, err := ts.handleReadNote(context.Background(), nil, readNoteInput{Name: "hello"})
	if err != nil {
		t.Fatalf("handleReadNote: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text == "" {
		t.Fatal("expected note content")
	}
}

func TestHandleReadNote_NotFound(t *testing.T) {
	ts := newTestToolset(t)
	res, _, err := ts.handleReadNote(context.Background(), nil, readNoteInput{Name: "does-not-exist"})
	if err != nil {
		t.Fatalf("handleReadNote: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text == "" || text[:6] != "error:" {
		t.Fatalf("expected not_found error, got %q", text)
	}
}

func TestHandleCreateNote_ForbiddenPathDeniesWrite(t *testing.T) {
	ts := newTestToolset(t)
	ts.policy.Reload([]string{"**/Private/*"}, nil)
	res, _, err := ts.handleCreateNote(context.Background(), nil, createNoteInput{
		Title: "secret", Content: "shh", Folder: "Private",
	})
	if err != nil {
		t.Fatalf("handleCreateNote: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text == "" || text[:6] != "error:" {
		t.Fatalf("expected forbidden error, got %q", text)
	}
	if _, statErr := os.Stat(filepath.Join(ts.cfg.VaultPath, "Private", "secret.md")); statErr == nil {
		t.Fatal("file must not be created when the path is forbidden")
	}
}

func TestHandleCreateNote_Success(t *testing.T) {
	ts := newTestToolset(t)
	res, _, err := ts.handleCreateNote(context.Background(), nil, createNoteInput{
		Title: "New Note", Content: "some content", Folder: "Notes",
	})
	if err != nil {
		t.Fatalf("handleCreateNote: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text == "" {
		t.Fatal("expected success message")
	}
	if _, statErr := os.Stat(filepath.Join(ts.cfg.VaultPath, "Notes", "New Note.md")); statErr != nil {
		t.Fatalf("expected note file to be created: %v", statErr)
	}
}

func TestHandleSearchText_TitlesOnly(t *testing.T) {
	ts := newTestToolset(t)
	res, _, err := ts.handleSearchText(context.Background(), nil, searchTextInput{Text: "hello", TitlesOnly: true})
	if err != nil {
		t.Fatalf("handleSearchText: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text != "Notes/hello.md" {
		t.Fatalf("unexpected titles-only result: %q", text)
	}
}
