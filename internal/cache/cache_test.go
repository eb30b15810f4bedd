package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNoteNameCache_ResolveAndInvalidate(t *testing.T) {
	vault := t.TempDir()
	if err := os.WriteFile(filepath.Join(vault, "Hello World.md"), []byte("# hi"), 0o644); err != nil {
		t.Fatalf("seed note: %v", err)
	}

	c := NewNoteNameCache(vault, time.Minute)
	path, ok := c.Resolve("hello world")
	if !ok {
		t.Fatalf("expected a resolved path")
	}
	if filepath.Base(path) != "Hello World.md" {
		t.Fatalf("unexpected resolved path: %s", path)
	}

	if _, ok := c.Resolve("nonexistent"); ok {
		t.Fatalf("expected no match for nonexistent stem")
	}

	c.Invalidate("hello world")
	if _, ok := c.Resolve("hello world"); !ok {
		t.Fatalf("expected resolve to succeed again after invalidation triggers a fresh walk")
	}
}

// TestNoteNameCache_StaleHitRechecksExistence: a cached Some(path) must
// never be returned once the file is gone.
func TestNoteNameCache_StaleHitRechecksExistence(t *testing.T) {
	vault := t.TempDir()
	notePath := filepath.Join(vault, "Temp.md")
	if err := os.WriteFile(notePath, []byte("# temp"), 0o644); err != nil {
		t.Fatalf("seed note: %v", err)
	}

	c := NewNoteNameCache(vault, time.Hour)
	if _, ok := c.Resolve("temp"); !ok {
		t.Fatalf("expected initial resolve to succeed")
	}

	if err := os.Remove(notePath); err != nil {
		t.Fatalf("remove note: %v", err)
	}

	if _, ok := c.Resolve("temp"); ok {
		t.Fatalf("expected stale cache hit to be rejected after file deletion")
	}
}

func TestSkillCache_SetGetInvalidate(t *testing.T) {
	c := NewSkillCache()
	if _, ok := c.Get("/vault"); ok {
		t.Fatalf("expected empty cache to miss")
	}
	c.Set("/vault", []string{"a", "b"})
	v, ok := c.Get("/vault")
	if !ok {
		t.Fatalf("expected a hit after Set")
	}
	if got := v.([]string); len(got) != 2 {
		t.Fatalf("unexpected cached value: %v", got)
	}
	c.InvalidateAll()
	if _, ok := c.Get("/vault"); ok {
		t.Fatalf("expected miss after InvalidateAll")
	}
}
