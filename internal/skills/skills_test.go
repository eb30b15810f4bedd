package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sgx-labs/obsidianrag/internal/cache"
)

func writeSkill(t *testing.T, skillsDir, name, frontMatter, body string) {
	t.Helper()
	dir := filepath.Join(skillsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := frontMatter + body
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
}

func TestList_LoadsAndCaches(t *testing.T) {
	vault := t.TempDir()
	skillsDir := filepath.Join(vault, ".agent", "skills")
	writeSkill(t, skillsDir, "researcher",
		"---\nname: researcher\ndescription: Does research.\ntools:\n  - web_search\n---\n",
		"# Researcher\n\nBody text.\n")
	writeSkill(t, skillsDir, "broken", "no frontmatter here\n", "")

	c := cache.NewSkillCache()
	got, rerr := List(skillsDir, vault, c)
	if rerr != nil {
		t.Fatalf("list: %v", rerr)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 well-formed skill (broken one skipped), got %d", len(got))
	}
	if got[0].Name != "researcher" || len(got[0].Tools) != 1 || got[0].Tools[0] != "web_search" {
		t.Fatalf("unexpected skill: %+v", got[0])
	}

	if _, ok := c.Get(vault); !ok {
		t.Fatalf("expected List to populate the cache")
	}
}

func TestGet_NotFound(t *testing.T) {
	vault := t.TempDir()
	skillsDir := filepath.Join(vault, ".agent", "skills")
	c := cache.NewSkillCache()
	_, rerr := Get(skillsDir, vault, "missing", c)
	if rerr == nil {
		t.Fatalf("expected not_found error")
	}
}

func TestGlobalRules_MissingIsNotFound(t *testing.T) {
	_, rerr := GlobalRules(filepath.Join(t.TempDir(), "REGLAS_GLOBALES.md"))
	if rerr == nil {
		t.Fatalf("expected not_found error for missing rules file")
	}
}
