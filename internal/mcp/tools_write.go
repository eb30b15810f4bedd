package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/obsidianrag/internal/guard"
	"github.com/sgx-labs/obsidianrag/internal/writepath"
)

type moveNoteInput struct {
	Src           string `json:"src" jsonschema:"Current vault-relative path"`
	Dst           string `json:"dst" jsonschema:"New vault-relative path"`
	CreateParents *bool  `json:"create_parents,omitempty" jsonschema:"Create destination folders if missing (default true)"`
}

func (ts *toolset) handleMoveNote(ctx context.Context, req *mcp.CallToolRequest, input moveNoteInput) (*mcp.CallToolResult, any, error) {
	res := ts.wp.Move(input.Src, input.Dst, clampBool(input.CreateParents, true))
	if !res.IsOK() {
		return errResult(res.Err), nil, nil
	}
	return textResult(fmt.Sprintf("moved %s -> %s", input.Src, input.Dst)), nil, nil
}

type createNoteInput struct {
	Title       string `json:"title" jsonschema:"Note title"`
	Content     string `json:"content,omitempty" jsonschema:"Body markdown"`
	Folder      string `json:"folder,omitempty" jsonschema:"Destination folder (auto-suggested if omitted)"`
	Tags        string `json:"tags,omitempty" jsonschema:"Comma-separated tags"`
	Template    string `json:"template,omitempty" jsonschema:"Template name under the templates folder"`
	Agent       string `json:"agent,omitempty" jsonschema:"Writer attribution stored in front matter"`
	Description string `json:"description,omitempty" jsonschema:"Short description, used by some templates"`
}

func (ts *toolset) handleCreateNote(ctx context.Context, req *mcp.CallToolRequest, input createNoteInput) (*mcp.CallToolResult, any, error) {
	if len(input.Content) > maxBodyLen {
		return textResult("error: validation: content exceeds the maximum note size"), nil, nil
	}
	if ts.guard != nil {
		v := ts.guard.CheckAll(map[string]string{"title": input.Title, "content": input.Content}, []string{"title", "content"})
		if !v.Safe {
			return textResult("error: validation: " + guard.ErrRejected(v)), nil, nil
		}
	}

	res := ts.wp.Create(writepath.CreateOptions{
		Title: input.Title, Body: input.Content, Folder: input.Folder,
		TagsCSV: input.Tags, TemplateName: input.Template, Agent: input.Agent,
		Description: input.Description,
	})
	if !res.IsOK() {
		return errResult(res.Err), nil, nil
	}
	return textResult("created " + res.Value), nil, nil
}

type appendToNoteInput struct {
	Name    string `json:"name" jsonschema:"Note name or path"`
	Content string `json:"content" jsonschema:"Markdown to append"`
	AtEnd   *bool  `json:"at_end,omitempty" jsonschema:"Append after the body rather than right after front matter (default true)"`
}

func (ts *toolset) handleAppendToNote(ctx context.Context, req *mcp.CallToolRequest, input appendToNoteInput) (*mcp.CallToolResult, any, error) {
	if len(input.Content) > maxBodyLen {
		return textResult("error: validation: content exceeds the maximum note size"), nil, nil
	}
	res := ts.wp.Append(input.Name, input.Content, clampBool(input.AtEnd, true))
	if !res.IsOK() {
		return errResult(res.Err), nil, nil
	}
	return textResult("appended to " + input.Name), nil, nil
}

type appendToSectionInput struct {
	Name            string `json:"name" jsonschema:"Note name or path"`
	Section         string `json:"section" jsonschema:"Heading text to find"`
	Content         string `json:"content" jsonschema:"Markdown to insert"`
	CreateIfMissing *bool  `json:"create_if_missing,omitempty" jsonschema:"Create the section if not found (default true)"`
}

func (ts *toolset) handleAppendToSection(ctx context.Context, req *mcp.CallToolRequest, input appendToSectionInput) (*mcp.CallToolResult, any, error) {
	if len(input.Content) > maxBodyLen {
		return textResult("error: validation: content exceeds the maximum note size"), nil, nil
	}
	res := ts.wp.AppendToSection(input.Name, input.Section, input.Content, clampBool(input.CreateIfMissing, true))
	if !res.IsOK() {
		return errResult(res.Err), nil, nil
	}
	return textResult(fmt.Sprintf("appended to %s under %q", input.Name, input.Section)), nil, nil
}

type editNoteInput struct {
	Name    string `json:"name" jsonschema:"Note name or path"`
	Content string `json:"content" jsonschema:"New full markdown content"`
}

func (ts *toolset) handleEditNote(ctx context.Context, req *mcp.CallToolRequest, input editNoteInput) (*mcp.CallToolResult, any, error) {
	if len(input.Content) > maxBodyLen {
		return textResult("error: validation: content exceeds the maximum note size"), nil, nil
	}
	res := ts.wp.Edit(input.Name, input.Content)
	if !res.IsOK() {
		return errResult(res.Err), nil, nil
	}
	return textResult("edited " + input.Name), nil, nil
}

type deleteNoteInput struct {
	Name    string `json:"name" jsonschema:"Note name or path"`
	Confirm *bool  `json:"confirm,omitempty" jsonschema:"Must be explicitly set (default true)"`
}

func (ts *toolset) handleDeleteNote(ctx context.Context, req *mcp.CallToolRequest, input deleteNoteInput) (*mcp.CallToolResult, any, error) {
	res := ts.wp.Delete(input.Name, clampBool(input.Confirm, true))
	if !res.IsOK() {
		return errResult(res.Err), nil, nil
	}
	return textResult("deleted " + input.Name), nil, nil
}

type searchAndReplaceInput struct {
	Find    string `json:"find" jsonschema:"Literal text to find"`
	Replace string `json:"replace" jsonschema:"Replacement text"`
	Folder  string `json:"folder,omitempty" jsonschema:"Restrict to a vault-relative folder"`
	Preview *bool  `json:"preview,omitempty" jsonschema:"Report hits without writing (default true)"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Max files to touch (default 100)"`
}

func (ts *toolset) handleSearchAndReplace(ctx context.Context, req *mcp.CallToolRequest, input searchAndReplaceInput) (*mcp.CallToolResult, any, error) {
	if ts.guard != nil {
		v := ts.guard.CheckAll(map[string]string{"find": input.Find, "replace": input.Replace}, []string{"find", "replace"})
		if !v.Safe {
			return textResult("error: validation: " + guard.ErrRejected(v)), nil, nil
		}
	}
	limit := clampInt(input.Limit, 100, 10_000)
	res := ts.wp.SearchAndReplace(input.Find, input.Replace, input.Folder, clampBool(input.Preview, true), limit)
	if !res.IsOK() {
		return errResult(res.Err), nil, nil
	}
	if len(res.Value) == 0 {
		return textResult("no matches"), nil, nil
	}
	var b strings.Builder
	for _, h := range res.Value {
		if h.WriteFailed != "" {
			fmt.Fprintf(&b, "%s: %d occurrence(s) — write failed: %s\n", h.Path, h.Count, h.WriteFailed)
			continue
		}
		fmt.Fprintf(&b, "%s: %d occurrence(s)\n", h.Path, h.Count)
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}

type indexVaultInput struct {
	Force bool `json:"force,omitempty" jsonschema:"Rebuild everything from scratch (default false)"`
}

func (ts *toolset) handleIndexVault(ctx context.Context, req *mcp.CallToolRequest, input indexVaultInput) (*mcp.CallToolResult, any, error) {
	stats, err := ts.ix.EnsureIndex(input.Force)
	if err != nil {
		return textResult(fmt.Sprintf("error: internal: index vault: %v", err)), nil, nil
	}
	if ts.retr != nil {
		if rerr := ts.retr.Rebuild(); rerr != nil {
			return textResult(fmt.Sprintf("indexed (docs=%d new=%d modified=%d deleted=%d, %.2fs) but BM25 rebuild failed: %v",
				stats.DocsProcessed, stats.DocsNew, stats.DocsModified, stats.DocsDeleted, stats.TimeSeconds, rerr)), nil, nil
		}
	}
	return textResult(fmt.Sprintf("indexed: docs=%d new=%d modified=%d deleted=%d incremental=%t time=%.2fs",
		stats.DocsProcessed, stats.DocsNew, stats.DocsModified, stats.DocsDeleted, stats.IsIncremental, stats.TimeSeconds)), nil, nil
}
