package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/frontmatter"
	"github.com/sgx-labs/obsidianrag/internal/resultkind"
)

// skillTemplate is the fixed SKILL.md scaffold generate_skill renders.
// Its structure is exactly what Sync later enforces: the REGLAS_GLOBALES
// caution block and the editing golden-rule section. Placeholders, in
// order: name, description, tools, date, title, when-to-use, agent dir,
// default location, instructions.
var skillTemplate = strings.Join([]string{
	"---",
	"name: %[1]s",
	"description: >",
	"  %[2]s",
	"tools: [%[3]s]",
	"updated: %[4]s",
	"---",
	"",
	"# %[5]s",
	"",
	"%[2]s",
	"",
	"## Cuándo usar esta skill",
	"%[6]s",
	"",
	"## Antes de Crear Notas",
	"",
	"> [!CAUTION]",
	"> **OBLIGATORIO**: Lee y aplica [[%[7]s/REGLAS_GLOBALES]]",
	"> antes de crear cualquier nota.",
	"",
	"**Ubicación por defecto:** `%[8]s`",
	"",
	"## Instrucciones",
	"",
	"%[9]s",
	"",
	"## REGLA DE ORO DE EDICIÓN",
	"Cuando uses `edit_note`, el `content` debe ser el **ARCHIVO COMPLETO**.",
	"- **NUNCA** dupliques el bloque YAML.",
	"- **REEMPLAZA** la metadata anterior con la nueva.",
	"",
}, "\n")

// GenerateOptions bundles generate_skill's arguments.
type GenerateOptions struct {
	Name            string
	Description     string
	Instructions    string
	Tools           string // comma-separated, defaults applied when empty
	DefaultLocation string
}

// Generate renders a new skill from the standard scaffold and writes it
// to <skillsDir>/<name>/SKILL.md atomically. agentDir ( ".agent" or
// ".agents") parameterizes the REGLAS_GLOBALES wikilink. Returns the
// cleaned skill name.
func Generate(skillsDir, agentDir string, opts GenerateOptions, now time.Time, c *cache.SkillCache) (string, *resultkind.Error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(opts.Name)), " ", "-")
	if name == "" {
		return "", resultkind.Field("name", "skill name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", resultkind.Field("name", "skill name must be a plain folder name")
	}
	description := strings.Join(strings.Fields(opts.Description), " ")
	if description == "" {
		return "", resultkind.Field("description", "skill description must not be empty")
	}

	skillFile := filepath.Join(skillsDir, name, "SKILL.md")
	if _, err := os.Stat(skillFile); err == nil {
		return "", resultkind.New(resultkind.Conflict, "a skill named %q already exists; edit its SKILL.md instead", name)
	}

	tools := strings.TrimSpace(opts.Tools)
	if tools == "" {
		tools = "read, edit, search, obsidian-mcp"
	}
	title := titleCase(strings.ReplaceAll(name, "-", " "))
	whenToUse := "- Cuando el usuario necesite: " + strings.ToLower(description) + "\n" +
		"- Cuando se mencione este tema o contexto específico."
	location := opts.DefaultLocation
	if location == "" {
		location = "02_Aprendizaje/"
	}

	content := fmt.Sprintf(skillTemplate,
		name, description, tools, now.Format(frontmatter.DateLayout),
		title, whenToUse, agentDir, location, strings.TrimSpace(opts.Instructions))

	if err := os.MkdirAll(filepath.Dir(skillFile), 0o755); err != nil {
		return "", resultkind.New(resultkind.Internal, "create skill directory: %v", err)
	}
	if err := writeFileAtomic(skillFile, []byte(content)); err != nil {
		return "", resultkind.New(resultkind.Internal, "write SKILL.md: %v", err)
	}
	if c != nil {
		c.InvalidateAll()
	}
	return name, nil
}

// titleCase upper-cases the first letter of each space-separated word,
// leaving the rest of the word untouched.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		runes := []rune(w)
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
			words[i] = string(runes)
		}
	}
	return strings.Join(words, " ")
}

// writeFileAtomic is the same write-temp-then-rename idiom the tracker
// and write path use for their own persisted files.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
