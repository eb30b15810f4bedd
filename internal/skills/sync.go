package skills

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/resultkind"
)

// SyncIssue is one structural problem found in a skill definition.
type SyncIssue struct {
	Skill   string
	Issue   string
	Fixable bool
}

var firstTitlePattern = regexp.MustCompile(`(?m)^# .+\n`)

// goldenRule is the editing section every skill must carry, appended by
// Sync when missing.
var goldenRule = strings.Join([]string{
	"## REGLA DE ORO DE EDICIÓN",
	"Cuando uses `edit_note`, el `content` debe ser el **ARCHIVO COMPLETO**.",
	"- **NUNCA** dupliques el bloque YAML.",
	"- **REEMPLAZA** la metadata anterior con la nueva.",
}, "\n")

func cautionBlock(agentDir string) string {
	return "> [!CAUTION]\n> **OBLIGATORIO**: Lee y aplica [[" + agentDir +
		"/REGLAS_GLOBALES]] antes de crear notas.\n"
}

// Sync validates every skill under skillsDir against the structure
// Generate produces: a SKILL.md file, a REGLAS_GLOBALES caution
// reference, and the editing golden-rule section. With apply=false it
// only reports; with apply=true it patches the fixable issues in place
// (atomic write per file) and returns which skills were fixed.
// Underscore-prefixed folders are skipped as drafts.
func Sync(skillsDir, agentDir string, apply bool, c *cache.SkillCache) ([]SyncIssue, []string, *resultkind.Error) {
	entries, err := os.ReadDir(skillsDir)
	if os.IsNotExist(err) {
		return nil, nil, resultkind.New(resultkind.NotFound, "this vault has no skills directory")
	}
	if err != nil {
		return nil, nil, resultkind.New(resultkind.Internal, "read skills directory: %v", err)
	}

	var issues []SyncIssue
	var fixed []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		path := filepath.Join(skillsDir, e.Name(), "SKILL.md")
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			issues = append(issues, SyncIssue{Skill: e.Name(), Issue: "missing SKILL.md", Fixable: false})
			continue
		}
		content := string(raw)
		dirty := false

		if !strings.Contains(content, "REGLAS_GLOBALES") {
			issues = append(issues, SyncIssue{Skill: e.Name(), Issue: "missing REGLAS_GLOBALES reference", Fixable: true})
			if apply {
				content = insertCaution(content, agentDir)
				dirty = true
			}
		}
		if !strings.Contains(content, "REGLA DE ORO") {
			issues = append(issues, SyncIssue{Skill: e.Name(), Issue: "missing 'REGLA DE ORO DE EDICIÓN' section", Fixable: true})
			if apply {
				content = strings.TrimRight(content, "\n") + "\n\n" + goldenRule + "\n"
				dirty = true
			}
		}

		if dirty {
			if werr := writeFileAtomic(path, []byte(content)); werr != nil {
				issues = append(issues, SyncIssue{Skill: e.Name(), Issue: "could not write fixes: " + werr.Error(), Fixable: false})
				continue
			}
			fixed = append(fixed, e.Name())
		}
	}

	if len(fixed) > 0 && c != nil {
		c.InvalidateAll()
	}
	return issues, fixed, nil
}

// insertCaution places the caution block right after the first `# ` title
// line, or at the end of the file when the skill has no title at all.
func insertCaution(content, agentDir string) string {
	block := cautionBlock(agentDir)
	loc := firstTitlePattern.FindStringIndex(content)
	if loc == nil {
		return strings.TrimRight(content, "\n") + "\n\n" + block
	}
	return content[:loc[1]] + "\n" + block + "\n" + content[loc[1]:]
}
