package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sgx-labs/obsidianrag/internal/cache"
)

func writeSkillFile(t *testing.T, skillsDir, name, content string) {
	t.Helper()
	dir := filepath.Join(skillsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
}

func TestSync_MissingDirIsNotFound(t *testing.T) {
	_, _, rerr := Sync(filepath.Join(t.TempDir(), "skills"), ".agent", false, nil)
	if rerr == nil {
		t.Fatal("expected not_found for a vault with no skills directory")
	}
}

func TestSync_ReportsWithoutWriting(t *testing.T) {
	skillsDir := filepath.Join(t.TempDir(), "skills")
	content := "---\nname: bare\ndescription: d\n---\n\n# Bare\n\nBody.\n"
	writeSkillFile(t, skillsDir, "bare", content)

	issues, fixed, rerr := Sync(skillsDir, ".agent", false, nil)
	if rerr != nil {
		t.Fatalf("sync: %v", rerr)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues (caution + golden rule), got %+v", issues)
	}
	if len(fixed) != 0 {
		t.Fatalf("report mode must not fix anything, got %v", fixed)
	}
	raw, _ := os.ReadFile(filepath.Join(skillsDir, "bare", "SKILL.md"))
	if string(raw) != content {
		t.Fatal("report mode must leave the file untouched")
	}
}

func TestSync_ApplyPatchesBothIssues(t *testing.T) {
	skillsDir := filepath.Join(t.TempDir(), "skills")
	writeSkillFile(t, skillsDir, "bare", "---\nname: bare\ndescription: d\n---\n\n# Bare\n\nBody.\n")
	c := cache.NewSkillCache()
	c.Set("/vault", []Skill{})

	issues, fixed, rerr := Sync(skillsDir, ".agent", true, c)
	if rerr != nil {
		t.Fatalf("sync: %v", rerr)
	}
	if len(issues) != 2 {
		t.Fatalf("expected both issues still reported, got %+v", issues)
	}
	if len(fixed) != 1 || fixed[0] != "bare" {
		t.Fatalf("expected bare to be fixed once, got %v", fixed)
	}

	raw, _ := os.ReadFile(filepath.Join(skillsDir, "bare", "SKILL.md"))
	content := string(raw)
	titleIdx := strings.Index(content, "# Bare")
	cautionIdx := strings.Index(content, "REGLAS_GLOBALES")
	if cautionIdx == -1 || cautionIdx < titleIdx {
		t.Fatalf("expected caution block after the title, got:\n%s", content)
	}
	if !strings.Contains(content, "## REGLA DE ORO DE EDICIÓN") {
		t.Fatalf("expected golden rule appended, got:\n%s", content)
	}
	// Both fixes must land in the same file — the second must not clobber
	// the first.
	if c2 := strings.Count(content, "REGLAS_GLOBALES"); c2 != 1 {
		t.Fatalf("expected exactly one caution reference, got %d:\n%s", c2, content)
	}
	if _, ok := c.Get("/vault"); ok {
		t.Fatal("expected the skill cache to be invalidated after a fix")
	}

	// A second apply run is idempotent.
	issues2, fixed2, rerr := Sync(skillsDir, ".agent", true, nil)
	if rerr != nil {
		t.Fatalf("second sync: %v", rerr)
	}
	if len(issues2) != 0 || len(fixed2) != 0 {
		t.Fatalf("expected a clean second run, got issues=%+v fixed=%v", issues2, fixed2)
	}
}

func TestSync_MissingSkillFileNotFixable(t *testing.T) {
	skillsDir := filepath.Join(t.TempDir(), "skills")
	if err := os.MkdirAll(filepath.Join(skillsDir, "empty-folder"), 0o755); err != nil {
		t.Fatal(err)
	}

	issues, _, rerr := Sync(skillsDir, ".agent", true, nil)
	if rerr != nil {
		t.Fatalf("sync: %v", rerr)
	}
	if len(issues) != 1 || issues[0].Fixable {
		t.Fatalf("expected one unfixable missing-SKILL.md issue, got %+v", issues)
	}
}

func TestSync_SkipsUnderscoreDrafts(t *testing.T) {
	skillsDir := filepath.Join(t.TempDir(), "skills")
	writeSkillFile(t, skillsDir, "_draft", "work in progress\n")

	issues, _, rerr := Sync(skillsDir, ".agent", false, nil)
	if rerr != nil {
		t.Fatalf("sync: %v", rerr)
	}
	if len(issues) != 0 {
		t.Fatalf("expected underscore-prefixed folders to be skipped, got %+v", issues)
	}
}

func TestInsertCaution_NoTitleAppends(t *testing.T) {
	out := insertCaution("just prose, no heading\n", ".agents")
	if !strings.Contains(out, "[[.agents/REGLAS_GLOBALES]]") {
		t.Fatalf("expected caution appended with the configured agent dir, got:\n%s", out)
	}
}
