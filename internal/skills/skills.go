// Package skills loads agent-definition files from
// <vault>/.agent(s)/skills/<name>/SKILL.md and the vault's global rules
// document, the supplemented features SPEC_FULL.md folds back in from
// original_source/'s `.agent(s)`-adjacent conventions. Results are
// memoized through internal/cache's SkillCache until explicitly
// invalidated.
package skills

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/frontmatter"
	"github.com/sgx-labs/obsidianrag/internal/resultkind"
)

// Skill is one agent-definition file, matching spec.md §3's Skill shape:
// identity is the containing folder name.
type Skill struct {
	Name        string
	Description string
	Tools       []string
	Body        string
}

// List returns every skill under <vault>/.agent(s)/skills, loading from
// disk on a cache miss and memoizing the result under vaultRoot.
func List(skillsDir, vaultRoot string, c *cache.SkillCache) ([]Skill, *resultkind.Error) {
	if v, ok := c.Get(vaultRoot); ok {
		if skills, ok := v.([]Skill); ok {
			return skills, nil
		}
	}
	skills, rerr := loadAll(skillsDir)
	if rerr != nil {
		return nil, rerr
	}
	c.Set(vaultRoot, skills)
	return skills, nil
}

// Get returns a single named skill, loading the full list (possibly from
// cache) and filtering by name.
func Get(skillsDir, vaultRoot, name string, c *cache.SkillCache) (Skill, *resultkind.Error) {
	all, rerr := List(skillsDir, vaultRoot, c)
	if rerr != nil {
		return Skill{}, rerr
	}
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return Skill{}, resultkind.New(resultkind.NotFound, "no skill named %q", name)
}

func loadAll(skillsDir string) ([]Skill, *resultkind.Error) {
	entries, err := os.ReadDir(skillsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, resultkind.New(resultkind.Internal, "read skills directory: %v", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Skill
	for _, name := range names {
		s, rerr := loadOne(skillsDir, name)
		if rerr != nil {
			continue // malformed skill folders are skipped, not fatal to the listing
		}
		out = append(out, s)
	}
	return out, nil
}

func loadOne(skillsDir, name string) (Skill, *resultkind.Error) {
	path := filepath.Join(skillsDir, name, "SKILL.md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, resultkind.New(resultkind.NotFound, "skill %q has no SKILL.md", name)
	}

	meta, body := frontmatter.Split(string(raw))
	skillName := meta.GetString("name")
	if skillName == "" {
		skillName = name
	}
	description := meta.GetString("description")
	if description == "" {
		return Skill{}, resultkind.Field("description", "skill %q is missing a required description", name)
	}

	var tools []string
	if v, ok := meta.Get("tools"); ok {
		switch t := v.(type) {
		case string:
			tools = append(tools, t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					tools = append(tools, s)
				}
			}
		}
	}

	return Skill{Name: skillName, Description: description, Tools: tools, Body: body}, nil
}

// GlobalRules reads <vault>/.agent(s)/REGLAS_GLOBALES.md verbatim. A
// missing file is not_found, not an error condition callers need to
// special-case beyond checking the result kind.
func GlobalRules(path string) (string, *resultkind.Error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", resultkind.New(resultkind.NotFound, "no global rules document for this vault")
	}
	if err != nil {
		return "", resultkind.New(resultkind.Internal, "read global rules: %v", err)
	}
	return string(raw), nil
}
