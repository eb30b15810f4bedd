package writepath

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/pathpolicy"
)

func newTestWritePath(t *testing.T) (*WritePath, string) {
	t.Helper()
	vault := t.TempDir()
	policy, err := pathpolicy.New(vault, nil, nil)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	nc := cache.NewNoteNameCache(vault, time.Minute)
	wp := New(policy, vault, "Templates", nc, nil)
	return wp, vault
}

func TestCreate_SynthesizesFrontMatterAndHeading(t *testing.T) {
	wp, vault := newTestWritePath(t)
	res := wp.Create(CreateOptions{Title: "My Note", Body: "hello there", TagsCSV: "go, cli"})
	if !res.IsOK() {
		t.Fatalf("create failed: %v", res.Err)
	}
	data, err := os.ReadFile(filepath.Join(vault, res.Value))
	if err != nil {
		t.Fatalf("read created note: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "title: My Note") {
		t.Fatalf("expected title in frontmatter, got:\n%s", content)
	}
	if !strings.Contains(content, "# My Note") {
		t.Fatalf("expected heading prepended, got:\n%s", content)
	}
	if !strings.Contains(content, "hello there") {
		t.Fatalf("expected body preserved, got:\n%s", content)
	}
}

func TestCreate_RefusesExistingFile(t *testing.T) {
	wp, _ := newTestWritePath(t)
	res := wp.Create(CreateOptions{Title: "Dup", Body: "a"})
	if !res.IsOK() {
		t.Fatalf("first create failed: %v", res.Err)
	}
	res2 := wp.Create(CreateOptions{Title: "Dup", Body: "b"})
	if res2.IsOK() {
		t.Fatalf("expected conflict on duplicate create")
	}
}

func TestEdit_PreservesCreatedSetsUpdated(t *testing.T) {
	wp, vault := newTestWritePath(t)
	createRes := wp.Create(CreateOptions{Title: "Edit Me", Body: "v1"})
	if !createRes.IsOK() {
		t.Fatalf("create: %v", createRes.Err)
	}
	full := filepath.Join(vault, createRes.Value)
	original, _ := os.ReadFile(full)

	editRes := wp.Edit("Edit Me", string(original)+"\nmore text")
	if !editRes.IsOK() {
		t.Fatalf("edit: %v", editRes.Err)
	}
	updated, _ := os.ReadFile(full)
	content := string(updated)
	today := time.Now().Format("2006-01-02")
	if !strings.Contains(content, "created:") {
		t.Fatalf("expected created: preserved, got:\n%s", content)
	}
	if !strings.Contains(content, "updated: "+today) {
		t.Fatalf("expected updated: %s, got:\n%s", today, content)
	}
}

func TestAppendToSection_InsertsBetweenHeadings(t *testing.T) {
	wp, vault := newTestWritePath(t)
	body := "## Resources\n\n- existing\n\n## Other\n\ncontent\n"
	createRes := wp.Create(CreateOptions{Title: "Sections", Body: body})
	if !createRes.IsOK() {
		t.Fatalf("create: %v", createRes.Err)
	}

	res := wp.AppendToSection("Sections", "Resources", "- new", true)
	if !res.IsOK() {
		t.Fatalf("append_to_section: %v", res.Err)
	}
	data, _ := os.ReadFile(filepath.Join(vault, createRes.Value))
	content := string(data)
	if !strings.Contains(content, "## Resources\n\n- existing\n- new\n\n## Other") {
		t.Fatalf("unexpected result:\n%s", content)
	}
}

func TestAppendToSection_CreatesWhenMissing(t *testing.T) {
	wp, vault := newTestWritePath(t)
	createRes := wp.Create(CreateOptions{Title: "NoSections", Body: "plain body"})
	if !createRes.IsOK() {
		t.Fatalf("create: %v", createRes.Err)
	}
	res := wp.AppendToSection("NoSections", "Notes", "- item", true)
	if !res.IsOK() {
		t.Fatalf("append_to_section: %v", res.Err)
	}
	data, _ := os.ReadFile(filepath.Join(vault, createRes.Value))
	if !strings.Contains(string(data), "## Notes\n\n- item") {
		t.Fatalf("expected new section appended, got:\n%s", data)
	}
}

func TestDelete_RequiresConfirm(t *testing.T) {
	wp, _ := newTestWritePath(t)
	createRes := wp.Create(CreateOptions{Title: "ToDelete", Body: "x"})
	if !createRes.IsOK() {
		t.Fatalf("create: %v", createRes.Err)
	}
	if res := wp.Delete("ToDelete", false); res.IsOK() {
		t.Fatalf("expected delete without confirm to fail")
	}
	if res := wp.Delete("ToDelete", true); !res.IsOK() {
		t.Fatalf("delete: %v", res.Err)
	}
}

func TestMove_RefusesExistingDestination(t *testing.T) {
	wp, vault := newTestWritePath(t)
	wp.Create(CreateOptions{Title: "A", Body: "a"})
	wp.Create(CreateOptions{Title: "B", Body: "b"})
	if res := wp.Move("A.md", "B.md", true); res.IsOK() {
		t.Fatalf("expected move to existing destination to fail")
	}
	if res := wp.Move("A.md", "sub/A.md", true); !res.IsOK() {
		t.Fatalf("move: %v", res.Err)
	}
	if _, err := os.Stat(filepath.Join(vault, "sub", "A.md")); err != nil {
		t.Fatalf("expected moved file at sub/A.md: %v", err)
	}
}

func TestSearchAndReplace_PreviewDoesNotWrite(t *testing.T) {
	wp, vault := newTestWritePath(t)
	createRes := wp.Create(CreateOptions{Title: "Repl", Body: "foo foo bar"})
	if !createRes.IsOK() {
		t.Fatalf("create: %v", createRes.Err)
	}
	res := wp.SearchAndReplace("foo", "baz", "", true, 100)
	if !res.IsOK() {
		t.Fatalf("search_and_replace preview: %v", res.Err)
	}
	if len(res.Value) != 1 || res.Value[0].Count != 2 {
		t.Fatalf("unexpected preview hits: %+v", res.Value)
	}
	data, _ := os.ReadFile(filepath.Join(vault, createRes.Value))
	if !strings.Contains(string(data), "foo foo") {
		t.Fatalf("preview must not modify the file, got:\n%s", data)
	}

	commit := wp.SearchAndReplace("foo", "baz", "", false, 100)
	if !commit.IsOK() {
		t.Fatalf("search_and_replace commit: %v", commit.Err)
	}
	data, _ = os.ReadFile(filepath.Join(vault, createRes.Value))
	if strings.Contains(string(data), "foo") {
		t.Fatalf("expected foo replaced, got:\n%s", data)
	}
}
