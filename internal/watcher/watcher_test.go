package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/config"
	"github.com/sgx-labs/obsidianrag/internal/indexer"
	"github.com/sgx-labs/obsidianrag/internal/store"
)

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func newTestWatcher(t *testing.T, vault string) *Watcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.VaultPath = vault
	db, err := store.OpenMemory(8)
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ix := indexer.New(cfg, db, nil, nil)
	nc := cache.NewNoteNameCache(vault, time.Minute)
	w, err := New(cfg, ix, nc)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	return w
}

func TestWalkDirs_SkipsDefaultExcludedDirs(t *testing.T) {
	root := t.TempDir()

	mkdirAll(t, filepath.Join(root, "notes", "nested"))
	mkdirAll(t, filepath.Join(root, ".git"))
	mkdirAll(t, filepath.Join(root, ".obsidianrag"))

	w := newTestWatcher(t, root)
	got := w.walkDirs()
	relSet := make(map[string]bool, len(got))
	for _, p := range got {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatalf("rel path: %v", err)
		}
		relSet[filepath.ToSlash(rel)] = true
	}

	if !relSet["."] {
		t.Fatalf("expected vault root in watched dirs")
	}
	if !relSet["notes"] || !relSet["notes/nested"] {
		t.Fatalf("expected notes dirs to be watched, got: %#v", relSet)
	}
	if relSet[".git"] {
		t.Fatalf("expected .git to be skipped, got: %#v", relSet)
	}
}

func TestStartStop_DoesNotBlock(t *testing.T) {
	root := t.TempDir()
	mkdirAll(t, filepath.Join(root, "notes"))

	w := newTestWatcher(t, root)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
