package pathpolicy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sgx-labs/obsidianrag/internal/resultkind"
)

func newTestPolicy(t *testing.T, forbidden, private []string) *Policy {
	t.Helper()
	root := t.TempDir()
	p, err := New(root, forbidden, private)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestValidateWithinVault_AllowsRelative(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	full, verr := p.ValidateWithinVault("notes/a.md")
	if verr != nil {
		t.Fatalf("unexpected deny: %v", verr)
	}
	if filepath.Dir(full) != filepath.Join(p.Root(), "notes") {
		t.Fatalf("unexpected resolved path: %s", full)
	}
}

func TestValidateWithinVault_BlocksAbsolute(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	if _, verr := p.ValidateWithinVault("/etc/passwd"); verr == nil {
		t.Fatal("expected deny for absolute path")
	}
}

func TestValidateWithinVault_BlocksTraversal(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	if _, verr := p.ValidateWithinVault("../../etc/passwd"); verr == nil {
		t.Fatal("expected deny for traversal")
	}
}

func TestValidateWithinVault_BlocksNullByte(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	if _, verr := p.ValidateWithinVault("a\x00.md"); verr == nil {
		t.Fatal("expected deny for null byte")
	}
}

func TestValidateWithinVault_BlocksWindowsDrive(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	if _, verr := p.ValidateWithinVault("C:/Windows/system32"); verr == nil {
		t.Fatal("expected deny for windows drive prefix")
	}
}

func TestValidateWithinVault_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.md")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "link.md")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	p, err := New(root, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, verr := p.ValidateWithinVault("link.md"); verr == nil {
		t.Fatal("expected deny for symlink escaping the vault")
	}
}

func TestValidateWithinVault_NotYetExistingPathInsideVault(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	if err := os.MkdirAll(filepath.Join(p.Root(), "Folder"), 0o755); err != nil {
		t.Fatal(err)
	}
	full, verr := p.ValidateWithinVault("Folder/new-note.md")
	if verr != nil {
		t.Fatalf("unexpected deny for not-yet-existing file: %v", verr)
	}
	if filepath.Base(full) != "new-note.md" {
		t.Fatalf("unexpected path: %s", full)
	}
}

func TestIsForbidden_GlobMatch(t *testing.T) {
	p := newTestPolicy(t, []string{"**/Private/*"}, nil)
	full := filepath.Join(p.Root(), "Private", "secret.md")
	if ok, pattern := p.IsForbidden(full); !ok || pattern != "**/Private/*" {
		t.Fatalf("expected forbidden match, got ok=%v pattern=%q", ok, pattern)
	}
}

func TestIsForbidden_NoMatch(t *testing.T) {
	p := newTestPolicy(t, []string{"**/Private/*"}, nil)
	full := filepath.Join(p.Root(), "Public", "note.md")
	if ok, _ := p.IsForbidden(full); ok {
		t.Fatal("expected no forbidden match")
	}
}

func TestIsInRestricted_DefaultPrivateGlobs(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	full := filepath.Join(p.Root(), "_PRIVATE", "diary.md")
	if !p.IsInRestricted(full, nil) {
		t.Fatal("expected default private glob to match _PRIVATE")
	}
}

func TestIsInRestricted_CaseInsensitiveFallback(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	full := filepath.Join(p.Root(), "_private", "diary.md")
	if !p.IsInRestricted(full, nil) {
		t.Fatal("expected case-insensitive match on _private")
	}
}

func TestCheckAccess_DeniesForbiddenWithoutLeakingPath(t *testing.T) {
	p := newTestPolicy(t, []string{"**/Private/*"}, nil)
	_, verr := p.CheckAccess("Private/secret.md", "create_note")
	if verr == nil {
		t.Fatal("expected forbidden error")
	}
	if verr.Kind != resultkind.Forbidden {
		t.Fatalf("expected Forbidden kind, got %v", verr.Kind)
	}
}

func TestCheckAccess_AllowsOrdinaryPath(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	full, verr := p.CheckAccess("Inbox/todo.md", "read_note")
	if verr != nil {
		t.Fatalf("unexpected deny: %v", verr)
	}
	if full == "" {
		t.Fatal("expected resolved path")
	}
}

func TestFilterPrivatePaths(t *testing.T) {
	p := newTestPolicy(t, nil, nil)
	in := []string{"Notes/a.md", "_PRIVATE/b.md", "Notes/c.md"}
	out := p.FilterPrivatePaths(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving paths, got %d: %v", len(out), out)
	}
	for _, rel := range out {
		if rel == "_PRIVATE/b.md" {
			t.Fatalf("private path leaked through filter: %v", out)
		}
	}
}

func TestReload_ReplacesPatterns(t *testing.T) {
	p := newTestPolicy(t, []string{"**/Old/*"}, nil)
	full := filepath.Join(p.Root(), "New", "note.md")
	if ok, _ := p.IsForbidden(full); ok {
		t.Fatal("unexpected forbidden match before reload")
	}
	p.Reload([]string{"**/New/*"}, nil)
	if ok, _ := p.IsForbidden(full); !ok {
		t.Fatal("expected forbidden match after reload")
	}
}

func TestLoadForbiddenPatternsFile_MissingIsEmpty(t *testing.T) {
	patterns, err := LoadForbiddenPatternsFile(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error for missing file: %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns, got %v", patterns)
	}
}

func TestLoadForbiddenPatternsFile_SkipsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".forbidden_paths")
	content := "# comment\n\n**/Private/*\n  \n**/Secret/**\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	patterns, err := LoadForbiddenPatternsFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"**/Private/*", "**/Secret/**"}
	if len(patterns) != len(want) {
		t.Fatalf("expected %v, got %v", want, patterns)
	}
	for i, p := range want {
		if patterns[i] != p {
			t.Fatalf("expected %v, got %v", want, patterns)
		}
	}
}
