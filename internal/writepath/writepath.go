// Package writepath implements every vault-mutating operation: create,
// edit, append, append_to_section, move, delete, and search_and_replace.
// Every one is mediated by the path policy and uses write-temp-then-rename
// for single-file writes, with access to each target path serialized by a
// per-path lock.
package writepath

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/frontmatter"
	"github.com/sgx-labs/obsidianrag/internal/loader"
	"github.com/sgx-labs/obsidianrag/internal/pathpolicy"
	"github.com/sgx-labs/obsidianrag/internal/resultkind"
	"github.com/sgx-labs/obsidianrag/internal/template"
)

// FolderPicker chooses a destination folder for create() when the caller
// does not supply one, backed by the folder suggester or its keyword-map
// fallback. Returning ok=false means "no suggestion" (caller falls back
// to the vault root).
type FolderPicker func(content string) (folder string, ok bool)

// WritePath mediates every filesystem write through the path policy and
// serializes access per target path.
type WritePath struct {
	policy          *pathpolicy.Policy
	vaultRoot       string
	templatesFolder string
	noteCache       *cache.NoteNameCache
	pickFolder      FolderPicker

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a WritePath for one vault. picker may be nil.
func New(policy *pathpolicy.Policy, vaultRoot, templatesFolder string, noteCache *cache.NoteNameCache, picker FolderPicker) *WritePath {
	return &WritePath{
		policy:          policy,
		vaultRoot:       vaultRoot,
		templatesFolder: templatesFolder,
		noteCache:       noteCache,
		pickFolder:      picker,
		locks:           make(map[string]*sync.Mutex),
	}
}

func (w *WritePath) lockFor(absPath string) func() {
	w.locksMu.Lock()
	l, ok := w.locks[absPath]
	if !ok {
		l = &sync.Mutex{}
		w.locks[absPath] = l
	}
	w.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

var sanitizePattern = regexp.MustCompile(`[/\\<>:"|?*]`)

func sanitizeFilename(title string) string {
	name := sanitizePattern.ReplaceAllString(title, "-")
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return name
}

// writeAtomic writes data to path using write-temp-then-rename on the
// same filesystem so a reader never observes a partially written file.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CreateOptions bundles create()'s arguments.
type CreateOptions struct {
	Title        string
	Body         string
	Folder       string
	TagsCSV      string
	TemplateName string
	Agent        string
	Description  string
}

// Create writes a new note, optionally expanded from a template. On
// success it returns the vault-relative path of the new note.
func (w *WritePath) Create(opts CreateOptions) resultkind.Result[string] {
	filename := sanitizeFilename(opts.Title)

	folder := opts.Folder
	if folder == "" && w.pickFolder != nil {
		if f, ok := w.pickFolder(opts.Body); ok {
			folder = f
		}
	}
	relPath := filepath.ToSlash(filepath.Join(folder, filename))

	full, verr := w.policy.CheckAccess(relPath, "create_note")
	if verr != nil {
		return resultkind.Fail[string](verr.Kind, "%s", verr.Message)
	}
	unlock := w.lockFor(full)
	defer unlock()

	if _, err := os.Stat(full); err == nil {
		return resultkind.Fail[string](resultkind.Conflict, "a note already exists at that location")
	}

	now := time.Now()
	var content string
	if opts.TemplateName != "" {
		tplPath := filepath.Join(w.vaultRoot, w.templatesFolder, sanitizeFilename(opts.TemplateName))
		raw, err := os.ReadFile(tplPath)
		if err != nil {
			return resultkind.Fail[string](resultkind.NotFound, "template %q not found", opts.TemplateName)
		}
		expanded := template.ExpandFields(string(raw), template.Fields{
			Title: opts.Title, Description: opts.Description, Folder: folder, Tags: opts.TagsCSV,
		}, now)
		expanded = template.ExpandDates(expanded, now)

		bodyWithoutFM := opts.Body
		if opts.Body != "" {
			_, bodyWithoutFM = frontmatter.Split(opts.Body)
		}
		content = strings.TrimRight(expanded, "\n") + "\n\n" + bodyWithoutFM
	} else {
		var extra *frontmatter.OrderedMap
		bodyWithoutFM := opts.Body
		if opts.Body != "" {
			extra, bodyWithoutFM = frontmatter.Split(opts.Body)
		}
		tags := splitTags(opts.TagsCSV)
		meta := frontmatter.MergeOnCreate(opts.Title, now.Format(frontmatter.DateLayout), tags, opts.Agent, extra)
		content = frontmatter.Build(meta)
		if !strings.HasPrefix(strings.TrimSpace(bodyWithoutFM), "#") {
			content += "# " + opts.Title + "\n\n"
		}
		content += bodyWithoutFM
	}

	if err := writeAtomic(full, []byte(content)); err != nil {
		return resultkind.Fail[string](resultkind.Internal, "write note: %v", err)
	}
	if w.noteCache != nil {
		w.noteCache.Invalidate(strings.TrimSuffix(filepath.Base(filename), ".md"))
	}
	return resultkind.Ok(relPath)
}

func splitTags(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(csv, ",") {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// resolveNote resolves name to a single absolute file path: first as a
// direct vault-relative path (with or without .md), then via the
// note-name cache's stem lookup.
func (w *WritePath) resolveNote(name string) (string, *resultkind.Error) {
	candidate := name
	if !strings.HasSuffix(candidate, ".md") {
		candidate += ".md"
	}
	if full, verr := w.policy.ValidateWithinVault(candidate); verr == nil {
		if _, err := os.Stat(full); err == nil {
			return full, nil
		}
	}
	if w.noteCache != nil {
		if full, ok := w.noteCache.Resolve(name); ok {
			return full, nil
		}
	}
	return "", resultkind.New(resultkind.NotFound, "no note named %q", name)
}

// Edit resolves name, expands date placeholders, and sets updated: to
// today while preserving created:. When the new content has a front-matter
// block without created:, the note's previous created: value is inserted;
// content without a front-matter block is written as given.
func (w *WritePath) Edit(name, newContent string) resultkind.Result[struct{}] {
	full, rerr := w.resolveNote(name)
	if rerr != nil {
		return resultkind.Fail[struct{}](rerr.Kind, "%s", rerr.Message)
	}
	unlock := w.lockFor(full)
	defer unlock()

	if _, verr := w.policy.CheckAccess(w.relPath(full), "edit_note"); verr != nil {
		return resultkind.Fail[struct{}](verr.Kind, "%s", verr.Message)
	}

	now := time.Now()
	content := template.ExpandDates(newContent, now)
	if old, err := os.ReadFile(full); err == nil && strings.HasPrefix(content, "---\n") {
		oldMeta, _ := frontmatter.Split(string(old))
		newMeta, _ := frontmatter.Split(content)
		if created := oldMeta.GetString("created"); created != "" {
			if _, has := newMeta.Get("created"); !has {
				content = "---\ncreated: " + created + "\n" + content[len("---\n"):]
			}
		}
	}
	content = frontmatter.TouchUpdatedOnEdit(content, now.Format(frontmatter.DateLayout))

	if err := writeAtomic(full, []byte(content)); err != nil {
		return resultkind.Fail[struct{}](resultkind.Internal, "write note: %v", err)
	}
	return resultkind.Ok(struct{}{})
}

// Append reads the note, concatenates with a blank-line separator, and
// writes it back.
func (w *WritePath) Append(name, content string, atEnd bool) resultkind.Result[struct{}] {
	full, rerr := w.resolveNote(name)
	if rerr != nil {
		return resultkind.Fail[struct{}](rerr.Kind, "%s", rerr.Message)
	}
	unlock := w.lockFor(full)
	defer unlock()

	if _, verr := w.policy.CheckAccess(w.relPath(full), "append_to_note"); verr != nil {
		return resultkind.Fail[struct{}](verr.Kind, "%s", verr.Message)
	}

	raw, err := os.ReadFile(full)
	if err != nil {
		return resultkind.Fail[struct{}](resultkind.Internal, "read note: %v", err)
	}
	existing := string(raw)

	var merged string
	if atEnd {
		merged = strings.TrimRight(existing, "\n") + "\n\n" + content + "\n"
	} else {
		meta, body := frontmatter.Split(existing)
		if meta.Len() > 0 {
			merged = frontmatter.Build(meta) + content + "\n\n" + body
		} else {
			merged = content + "\n\n" + existing
		}
	}

	if err := writeAtomic(full, []byte(merged)); err != nil {
		return resultkind.Fail[struct{}](resultkind.Internal, "write note: %v", err)
	}
	return resultkind.Ok(struct{}{})
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// AppendToSection finds the section heading (any depth, case-insensitive)
// and inserts before the next heading of equal-or-shallower depth; if
// missing and createIfMissing, it appends a new level-2 section.
func (w *WritePath) AppendToSection(name, sectionTitle, content string, createIfMissing bool) resultkind.Result[struct{}] {
	full, rerr := w.resolveNote(name)
	if rerr != nil {
		return resultkind.Fail[struct{}](rerr.Kind, "%s", rerr.Message)
	}
	unlock := w.lockFor(full)
	defer unlock()

	if _, verr := w.policy.CheckAccess(w.relPath(full), "append_to_section"); verr != nil {
		return resultkind.Fail[struct{}](verr.Kind, "%s", verr.Message)
	}

	raw, err := os.ReadFile(full)
	if err != nil {
		return resultkind.Fail[struct{}](resultkind.Internal, "read note: %v", err)
	}
	lines := strings.Split(string(raw), "\n")

	sectionIdx, sectionDepth := -1, 0
	for i, line := range lines {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(m[2]), sectionTitle) {
			sectionIdx, sectionDepth = i, len(m[1])
			break
		}
	}

	var result string
	if sectionIdx == -1 {
		if !createIfMissing {
			return resultkind.Fail[struct{}](resultkind.NotFound, "section %q not found", sectionTitle)
		}
		result = strings.TrimRight(string(raw), "\n") + "\n\n## " + sectionTitle + "\n\n" + content + "\n"
	} else {
		insertAt := len(lines)
		for i := sectionIdx + 1; i < len(lines); i++ {
			m := headingPattern.FindStringSubmatch(lines[i])
			if m != nil && len(m[1]) <= sectionDepth {
				insertAt = i
				break
			}
		}
		// Trim trailing blank lines inside the section, continue its content
		// directly, and keep a single blank line before the next heading.
		end := insertAt
		for end > sectionIdx+1 && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}
		sep := "\n"
		if end == sectionIdx+1 {
			sep = "\n\n" // empty section: blank line after the heading
		}
		var b strings.Builder
		b.WriteString(strings.Join(lines[:end], "\n"))
		b.WriteString(sep)
		b.WriteString(content)
		b.WriteString("\n")
		if insertAt < len(lines) {
			b.WriteString("\n")
			b.WriteString(strings.Join(lines[insertAt:], "\n"))
		}
		result = b.String()
	}

	if err := writeAtomic(full, []byte(result)); err != nil {
		return resultkind.Fail[struct{}](resultkind.Internal, "write note: %v", err)
	}
	return resultkind.Ok(struct{}{})
}

// Move renames a note, optionally creating destination parent folders.
func (w *WritePath) Move(src, dst string, createParents bool) resultkind.Result[struct{}] {
	fullSrc, verr := w.policy.CheckAccess(src, "move_note")
	if verr != nil {
		return resultkind.Fail[struct{}](verr.Kind, "%s", verr.Message)
	}
	fullDst, verr := w.policy.CheckAccess(dst, "move_note")
	if verr != nil {
		return resultkind.Fail[struct{}](verr.Kind, "%s", verr.Message)
	}
	unlockSrc := w.lockFor(fullSrc)
	defer unlockSrc()
	unlockDst := w.lockFor(fullDst)
	defer unlockDst()

	if _, err := os.Stat(fullDst); err == nil {
		return resultkind.Fail[struct{}](resultkind.Conflict, "destination already exists")
	}
	if createParents {
		if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
			return resultkind.Fail[struct{}](resultkind.Internal, "create destination folder: %v", err)
		}
	}
	if err := os.Rename(fullSrc, fullDst); err != nil {
		return resultkind.Fail[struct{}](resultkind.Internal, "move note: %v", err)
	}
	if w.noteCache != nil {
		w.noteCache.Invalidate("")
	}
	return resultkind.Ok(struct{}{})
}

// Delete removes a note. confirm must be true or the call is rejected.
func (w *WritePath) Delete(name string, confirm bool) resultkind.Result[struct{}] {
	if !confirm {
		return resultkind.Fail[struct{}](resultkind.Validation, "delete requires confirm=true")
	}
	full, rerr := w.resolveNote(name)
	if rerr != nil {
		return resultkind.Fail[struct{}](rerr.Kind, "%s", rerr.Message)
	}
	unlock := w.lockFor(full)
	defer unlock()

	if _, verr := w.policy.CheckAccess(w.relPath(full), "delete_note"); verr != nil {
		return resultkind.Fail[struct{}](verr.Kind, "%s", verr.Message)
	}
	if err := os.Remove(full); err != nil {
		return resultkind.Fail[struct{}](resultkind.Internal, "delete note: %v", err)
	}
	if w.noteCache != nil {
		w.noteCache.Invalidate("")
	}
	return resultkind.Ok(struct{}{})
}

// SearchReplaceHit is one file's occurrence count in a search_and_replace
// preview or commit.
type SearchReplaceHit struct {
	Path        string
	Count       int
	WriteFailed string // non-empty when the apply-mode write for this file failed
}

// SearchAndReplace performs a literal (non-regex) substring replacement
// across filtered files. In preview mode it returns the hit list without
// writing.
func (w *WritePath) SearchAndReplace(find, replace, folder string, preview bool, limit int) resultkind.Result[[]SearchReplaceHit] {
	if find == "" {
		return resultkind.Fail[[]SearchReplaceHit](resultkind.Validation, "find must not be empty")
	}
	if limit <= 0 {
		limit = 100
	}

	root := w.vaultRoot
	if folder != "" {
		full, verr := w.policy.CheckAccess(folder, "search_and_replace")
		if verr != nil {
			return resultkind.Fail[[]SearchReplaceHit](verr.Kind, "%s", verr.Message)
		}
		root = full
	}

	var hits []SearchReplaceHit
	err := loader.WalkMarkdownFiles(root, loader.WalkOptions{}, func(absPath string) error {
		if len(hits) >= limit {
			return nil
		}
		raw, err := os.ReadFile(absPath)
		if err != nil {
			return nil
		}
		count := strings.Count(string(raw), find)
		if count == 0 {
			return nil
		}
		hit := SearchReplaceHit{Path: w.relPath(absPath), Count: count}
		if !preview {
			unlock := w.lockFor(absPath)
			updated := strings.ReplaceAll(string(raw), find, replace)
			if werr := writeAtomic(absPath, []byte(updated)); werr != nil {
				hit.WriteFailed = werr.Error()
			}
			unlock()
		}
		hits = append(hits, hit)
		return nil
	})
	if err != nil {
		return resultkind.Fail[[]SearchReplaceHit](resultkind.Internal, "walk vault: %v", err)
	}
	return resultkind.Ok(hits)
}

func (w *WritePath) relPath(full string) string {
	rel, err := filepath.Rel(w.vaultRoot, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}
