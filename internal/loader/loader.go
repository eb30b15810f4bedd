// Package loader walks the vault, filters excluded paths, reads notes, and
// extracts wikilinks and image captions.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sgx-labs/obsidianrag/internal/frontmatter"
)

// excludedNameSubstrings are case-insensitive substrings that exclude a
// file by name.
var excludedNameSubstrings = []string{".excalidraw.md", ".canvas", "untitled"}

// defaultExcludedDirs are always skipped during a vault walk (templates
// and system folders are supplied by config at call sites via
// WalkOptions.ExtraExcludedDirs).
var defaultExcludedDirs = map[string]bool{
	".git":        true,
	".obsidian":   true,
	".trash":      true,
	".obsidianrag": true,
}

// WalkOptions parameterizes a vault walk with configured exclusions.
type WalkOptions struct {
	ExtraExcludedDirs map[string]bool // templates folder, system folder, configured exclusions
}

func (o WalkOptions) excludes(name string) bool {
	if defaultExcludedDirs[name] {
		return true
	}
	return o.ExtraExcludedDirs != nil && o.ExtraExcludedDirs[name]
}

// WalkMarkdownFiles walks vaultRoot, invoking fn with the absolute path of
// each included .md file. Directories matching the exclusion set are
// skipped entirely (filepath.SkipDir); files matching an excluded name
// substring are skipped individually.
func WalkMarkdownFiles(vaultRoot string, opts WalkOptions, fn func(absPath string) error) error {
	return filepath.WalkDir(vaultRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != vaultRoot && opts.excludes(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		lower := strings.ToLower(d.Name())
		for _, sub := range excludedNameSubstrings {
			if strings.Contains(lower, sub) {
				return nil
			}
		}
		return fn(path)
	})
}

// Document is a single loaded note.
type Document struct {
	Source      string // absolute path, stable across runs
	PageContent string // body text plus appended image captions
	Links       []string
	FrontMatter *frontmatter.OrderedMap
}

var wikilinkPattern = regexp.MustCompile(`\[\[(.*?)\]\]`)
var embedCaptionPattern = regexp.MustCompile(`!\[\[([^|\]]+)\|([^\]]+)\]\]`)
var mdImagePattern = regexp.MustCompile(`!\[([^\]]+)\]\([^)]+\)`)

// ExtractWikilinks returns the deduplicated, order-preserving list of
// wikilink targets in text, with any `|alias` suffix stripped.
func ExtractWikilinks(text string) []string {
	matches := wikilinkPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if idx := strings.Index(target, "|"); idx >= 0 {
			target = target[:idx]
		}
		target = strings.TrimSpace(target)
		if target != "" && !seen[target] {
			seen[target] = true
			out = append(out, target)
		}
	}
	return out
}

// extractImageCaptions returns non-empty captions from `![[file|caption]]`
// embeds and standard `![alt](url)` images: all embed captions first, then
// all image alt texts, each group in document order.
func extractImageCaptions(text string) []string {
	var captions []string
	for _, m := range embedCaptionPattern.FindAllStringSubmatch(text, -1) {
		if c := strings.TrimSpace(m[2]); c != "" {
			captions = append(captions, c)
		}
	}
	for _, m := range mdImagePattern.FindAllStringSubmatch(text, -1) {
		if c := strings.TrimSpace(m[1]); c != "" {
			captions = append(captions, c)
		}
	}
	return captions
}

// Load reads absPath and produces a Document: front-matter is parsed and
// flattened (lists become comma-joined strings, scalars become strings),
// wikilinks are extracted from the body, and non-empty image captions are
// appended as paragraphs to make images searchable. Empty files are
// reported via ok=false so callers can ignore them.
func Load(absPath string) (Document, bool, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return Document{}, false, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Document{}, false, nil
	}

	meta, body := frontmatter.Split(string(raw))
	links := ExtractWikilinks(body)

	content := body
	for _, caption := range extractImageCaptions(body) {
		content += "\n\n" + caption
	}

	flat := frontmatter.NewOrderedMap()
	for _, k := range meta.Keys() {
		v, _ := meta.Get(k)
		flat.Set(k, flattenValue(v))
	}
	flat.Set("links", strings.Join(links, ","))

	return Document{
		Source:      absPath,
		PageContent: content,
		Links:       links,
		FrontMatter: flat,
	}, true, nil
}

// flattenValue renders a front-matter value as a single string, joining
// lists with commas.
func flattenValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, flattenValue(item))
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
