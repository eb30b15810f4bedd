package mcp

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/obsidianrag/internal/connections"
	"github.com/sgx-labs/obsidianrag/internal/folder"
	"github.com/sgx-labs/obsidianrag/internal/frontmatter"
	"github.com/sgx-labs/obsidianrag/internal/loader"
	"github.com/sgx-labs/obsidianrag/internal/retriever"
)

type listNotesInput struct {
	Folder  string `json:"folder,omitempty" jsonschema:"Vault-relative folder to list (default: vault root)"`
	Recurse *bool  `json:"recurse,omitempty" jsonschema:"Include subfolders (default true)"`
}

func (ts *toolset) handleListNotes(ctx context.Context, req *mcp.CallToolRequest, input listNotesInput) (*mcp.CallToolResult, any, error) {
	full, verr := ts.policy.CheckAccess(input.Folder, "list_notes")
	if verr != nil {
		return errResult(verr), nil, nil
	}
	recurse := clampBool(input.Recurse, true)

	var notes []string
	err := loader.WalkMarkdownFiles(full, loader.WalkOptions{}, func(absPath string) error {
		rel, _ := filepath.Rel(ts.cfg.VaultPath, absPath)
		rel = filepath.ToSlash(rel)
		if !recurse {
			inner, err := filepath.Rel(full, absPath)
			if err != nil || strings.Contains(filepath.ToSlash(inner), "/") {
				return nil
			}
		}
		notes = append(notes, rel)
		return nil
	})
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: list notes: %v", err)), nil, nil
	}
	notes = ts.policy.FilterPrivatePaths(notes)
	sort.Strings(notes)

	if len(notes) == 0 {
		return textResult("no notes found"), nil, nil
	}
	return textResult(strings.Join(notes, "\n")), nil, nil
}

type readNoteInput struct {
	Name string `json:"name" jsonschema:"Note name or vault-relative path"`
}

func (ts *toolset) handleReadNote(ctx context.Context, req *mcp.CallToolRequest, input readNoteInput) (*mcp.CallToolResult, any, error) {
	full, ok := ts.resolveRead(input.Name)
	if !ok {
		return textResult(fmt.Sprintf("error: not_found: no note named %q", input.Name)), nil, nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: read note: %v", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}

// resolveRead resolves a note name to an absolute path the same way the
// write path does (direct relative lookup, then the note-name cache),
// re-checking the path policy so read_note cannot be used to escape the
// vault or reach a forbidden/private path.
func (ts *toolset) resolveRead(name string) (string, bool) {
	candidate := name
	if !strings.HasSuffix(candidate, ".md") {
		candidate += ".md"
	}
	if full, verr := ts.policy.ValidateWithinVault(candidate); verr == nil {
		if _, err := os.Stat(full); err == nil {
			if rel, rerr := filepath.Rel(ts.cfg.VaultPath, full); rerr == nil {
				if _, verr := ts.policy.CheckAccess(filepath.ToSlash(rel), "read_note"); verr == nil {
					return full, true
				}
			}
		}
	}
	if ts.noteCache != nil {
		if full, ok := ts.noteCache.Resolve(name); ok {
			if rel, rerr := filepath.Rel(ts.cfg.VaultPath, full); rerr == nil {
				if _, verr := ts.policy.CheckAccess(filepath.ToSlash(rel), "read_note"); verr == nil {
					return full, true
				}
			}
		}
	}
	return "", false
}

type searchTextInput struct {
	Text       string `json:"text" jsonschema:"Search text"`
	Folder     string `json:"folder,omitempty" jsonschema:"Restrict to a vault-relative folder"`
	TitlesOnly bool   `json:"titles_only,omitempty" jsonschema:"Match only against note titles/filenames (default false)"`
}

func (ts *toolset) handleSearchText(ctx context.Context, req *mcp.CallToolRequest, input searchTextInput) (*mcp.CallToolResult, any, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return textResult("error: validation: text must not be empty"), nil, nil
	}
	if len(text) > maxQueryLen {
		text = text[:maxQueryLen]
	}
	root := ts.cfg.VaultPath
	if input.Folder != "" {
		full, verr := ts.policy.CheckAccess(input.Folder, "search_text")
		if verr != nil {
			return errResult(verr), nil, nil
		}
		root = full
	}

	if input.TitlesOnly {
		var hits []string
		err := loader.WalkMarkdownFiles(root, loader.WalkOptions{}, func(absPath string) error {
			if strings.Contains(strings.ToLower(filepath.Base(absPath)), strings.ToLower(text)) {
				if rel, err := filepath.Rel(ts.cfg.VaultPath, absPath); err == nil {
					hits = append(hits, filepath.ToSlash(rel))
				}
			}
			return nil
		})
		if err != nil {
			return textResult(fmt.Sprintf("error: internal: %v", err)), nil, nil
		}
		hits = ts.policy.FilterPrivatePaths(hits)
		if len(hits) == 0 {
			return textResult("no matching titles"), nil, nil
		}
		return textResult(strings.Join(hits, "\n")), nil, nil
	}

	results, err := ts.db.KeywordSearch(text, ts.cfg.MaxResults)
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: keyword search: %v", err)), nil, nil
	}
	var b strings.Builder
	count := 0
	for _, r := range results {
		rel := ts.relSource(r.Source)
		if input.Folder != "" && !strings.HasPrefix(rel, strings.TrimSuffix(filepath.ToSlash(input.Folder), "/")+"/") {
			continue
		}
		if ts.policy.IsInRestricted(r.Source, ts.cfg.PrivatePaths) {
			continue
		}
		fmt.Fprintf(&b, "%s (score %.3f)\n%s\n\n", rel, r.Score, snippet(r.Text, 240))
		count++
	}
	if count == 0 {
		return textResult("no matches"), nil, nil
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}

// relSource converts a chunk's absolute source path to a vault-relative
// display path.
func (ts *toolset) relSource(abs string) string {
	rel, err := filepath.Rel(ts.cfg.VaultPath, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}

type searchByDateInput struct {
	From string `json:"from" jsonschema:"Start date, YYYY-MM-DD"`
	To   string `json:"to,omitempty" jsonschema:"End date, YYYY-MM-DD (default: today)"`
}

func (ts *toolset) handleSearchByDate(ctx context.Context, req *mcp.CallToolRequest, input searchByDateInput) (*mcp.CallToolResult, any, error) {
	from, err := time.Parse(frontmatter.DateLayout, input.From)
	if err != nil {
		return textResult("error: validation: from must be YYYY-MM-DD"), nil, nil
	}
	to := time.Now()
	if input.To != "" {
		to, err = time.Parse(frontmatter.DateLayout, input.To)
		if err != nil {
			return textResult("error: validation: to must be YYYY-MM-DD"), nil, nil
		}
	}
	to = to.Add(24*time.Hour - time.Nanosecond)

	var hits []string
	err = loader.WalkMarkdownFiles(ts.cfg.VaultPath, loader.WalkOptions{}, func(absPath string) error {
		info, statErr := os.Stat(absPath)
		if statErr != nil {
			return nil
		}
		modTime := info.ModTime()

		date := modTime
		if raw, readErr := os.ReadFile(absPath); readErr == nil {
			meta, _ := frontmatter.Split(string(raw))
			if created := meta.GetString(frontmatter.KeyCreated); created != "" {
				if parsed, perr := time.Parse(frontmatter.DateLayout, created); perr == nil {
					date = parsed
				}
			}
		}
		if date.Before(from) || date.After(to) {
			return nil
		}
		if rel, relErr := filepath.Rel(ts.cfg.VaultPath, absPath); relErr == nil {
			hits = append(hits, fmt.Sprintf("%s (%s)", filepath.ToSlash(rel), date.Format(frontmatter.DateLayout)))
		}
		return nil
	})
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: %v", err)), nil, nil
	}
	if len(hits) == 0 {
		return textResult("no notes in that date range"), nil, nil
	}
	sort.Strings(hits)
	return textResult(strings.Join(hits, "\n")), nil, nil
}

type randomConceptInput struct {
	Folder string `json:"folder,omitempty" jsonschema:"Vault-relative folder to sample from"`
}

func (ts *toolset) handleRandomConcept(ctx context.Context, req *mcp.CallToolRequest, input randomConceptInput) (*mcp.CallToolResult, any, error) {
	full, verr := ts.policy.CheckAccess(input.Folder, "random_concept")
	if verr != nil {
		return errResult(verr), nil, nil
	}

	var candidates []string
	err := loader.WalkMarkdownFiles(full, loader.WalkOptions{}, func(absPath string) error {
		candidates = append(candidates, absPath)
		return nil
	})
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: %v", err)), nil, nil
	}
	var rels []string
	for _, c := range candidates {
		if rel, err := filepath.Rel(ts.cfg.VaultPath, c); err == nil {
			rels = append(rels, filepath.ToSlash(rel))
		}
	}
	rels = ts.policy.FilterPrivatePaths(rels)
	if len(rels) == 0 {
		return textResult("error: not_found: no notes to sample from"), nil, nil
	}
	pick := rels[rand.Intn(len(rels))]
	data, err := os.ReadFile(filepath.Join(ts.cfg.VaultPath, pick))
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: read note: %v", err)), nil, nil
	}
	return textResult(fmt.Sprintf("%s\n\n%s", pick, string(data))), nil, nil
}

type listTemplatesInput struct{}

func (ts *toolset) handleListTemplates(ctx context.Context, req *mcp.CallToolRequest, input listTemplatesInput) (*mcp.CallToolResult, any, error) {
	dir := filepath.Join(ts.cfg.VaultPath, ts.cfg.TemplatesFolder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return textResult("no templates folder configured"), nil, nil
		}
		return textResult(fmt.Sprintf("error: internal: %v", err)), nil, nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return textResult("no templates found"), nil, nil
	}
	return textResult(strings.Join(names, "\n")), nil, nil
}

type suggestFolderInput struct {
	Title   string `json:"title" jsonschema:"Proposed note title"`
	Content string `json:"content" jsonschema:"Proposed note body"`
	Tags    string `json:"tags,omitempty" jsonschema:"Comma-separated tags"`
}

func (ts *toolset) handleSuggestFolder(ctx context.Context, req *mcp.CallToolRequest, input suggestFolderInput) (*mcp.CallToolResult, any, error) {
	body := input.Title + "\n\n" + input.Content
	cands, err := folder.Suggest(ts.retr, ts.cfg.VaultPath, body, 5, 3)
	if err != nil || len(cands) == 0 {
		cands = folder.SuggestByKeyword(body)
	}
	if len(cands) == 0 {
		return textResult("no folder suggestion; falling back to vault root"), nil, nil
	}
	var b strings.Builder
	for _, c := range cands {
		fmt.Fprintf(&b, "%s (confidence %.2f, votes %d)\n", c.Folder, c.Confidence, c.Votes)
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}

type semanticQueryInput struct {
	Question       string `json:"question" jsonschema:"Natural language question"`
	MetadataFilter string `json:"metadata_filter,omitempty" jsonschema:"Comma-separated key=value front-matter filters"`
}

func (ts *toolset) handleSemanticQuery(ctx context.Context, req *mcp.CallToolRequest, input semanticQueryInput) (*mcp.CallToolResult, any, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return textResult("error: validation: question must not be empty"), nil, nil
	}
	if len(question) > maxQueryLen {
		question = question[:maxQueryLen]
	}

	filter := retriever.Filter{}
	for _, pair := range strings.Split(input.MetadataFilter, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			filter[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	chunks, err := ts.retr.Retrieve(question, filter)
	if err != nil {
		return textResult(fmt.Sprintf("error: dependency: semantic query unavailable: %v", err)), nil, nil
	}
	var sources []string
	var b strings.Builder
	for _, c := range chunks {
		if ts.policy.IsInRestricted(c.Source, ts.cfg.PrivatePaths) {
			continue
		}
		rel := ts.relSource(c.Source)
		sources = append(sources, rel)
		fmt.Fprintf(&b, "%s [%s] (score %.3f)\n%s\n\n", rel, c.Heading, c.Score, snippet(c.Text, 400))
	}
	if len(sources) == 0 {
		return textResult("no relevant passages found"), nil, nil
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}

type suggestConnectionsInput struct {
	Threshold      float64 `json:"threshold,omitempty" jsonschema:"Minimum cosine similarity (default 0.70)"`
	Limit          int     `json:"limit,omitempty" jsonschema:"Max suggestions (default 10)"`
	IncludeFolders string  `json:"include_folders,omitempty" jsonschema:"Comma-separated folder prefixes to restrict to"`
	ExcludeMOCs    *bool   `json:"exclude_mocs,omitempty" jsonschema:"Skip MOC notes (default true)"`
	MinWords       int     `json:"min_words,omitempty" jsonschema:"Minimum word count per chunk (default 150)"`
}

func (ts *toolset) handleSuggestConnections(ctx context.Context, req *mcp.CallToolRequest, input suggestConnectionsInput) (*mcp.CallToolResult, any, error) {
	opts := connections.DefaultOptions()
	if ts.cfg.SearchTimeoutSeconds > 0 {
		opts.Deadline = time.Duration(ts.cfg.SearchTimeoutSeconds) * time.Second
	}
	if input.Threshold > 0 {
		opts.Threshold = input.Threshold
	} else {
		opts.Threshold = 0.70
	}
	opts.Limit = clampInt(input.Limit, 10, 200)
	opts.ExcludeMOCs = clampBool(input.ExcludeMOCs, true)
	if input.MinWords > 0 {
		opts.MinWords = input.MinWords
	} else {
		opts.MinWords = 150
	}
	if input.IncludeFolders != "" {
		for _, f := range strings.Split(input.IncludeFolders, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.IncludeFolders = append(opts.IncludeFolders, f)
			}
		}
	}
	opts.ExcludedFolders = ts.cfg.ExcludedFolders
	opts.ExcludedPatterns = ts.cfg.ExcludedPatterns

	suggestions, err := connections.Suggest(ts.db, ts.cfg.VaultPath, opts)
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: suggest connections: %v", err)), nil, nil
	}
	if len(suggestions) == 0 {
		return textResult("no connection suggestions"), nil, nil
	}
	var b strings.Builder
	for _, s := range suggestions {
		if ts.policy.IsInRestricted(filepath.Join(ts.cfg.VaultPath, s.FolderA, s.NoteA), ts.cfg.PrivatePaths) ||
			ts.policy.IsInRestricted(filepath.Join(ts.cfg.VaultPath, s.FolderB, s.NoteB), ts.cfg.PrivatePaths) {
			continue
		}
		fmt.Fprintf(&b, "%s <-> %s (similarity %.2f): %s\n", s.NoteA, s.NoteB, s.Similarity, s.Reason)
	}
	if b.Len() == 0 {
		return textResult("no connection suggestions"), nil, nil
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}
