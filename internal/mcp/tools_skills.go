package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/obsidianrag/internal/guard"
	"github.com/sgx-labs/obsidianrag/internal/skills"
)

type listSkillsInput struct{}

func (ts *toolset) handleListSkills(ctx context.Context, req *mcp.CallToolRequest, input listSkillsInput) (*mcp.CallToolResult, any, error) {
	list, rerr := skills.List(ts.cfg.SkillsDir(), ts.cfg.VaultPath, ts.skillCache)
	if rerr != nil {
		return errResult(rerr), nil, nil
	}
	if len(list) == 0 {
		return textResult("no skills defined"), nil, nil
	}
	var b strings.Builder
	for _, s := range list {
		fmt.Fprintf(&b, "%s: %s (tools: %s)\n", s.Name, s.Description, strings.Join(s.Tools, ", "))
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}

type getSkillInput struct {
	Name string `json:"name" jsonschema:"Skill name"`
}

func (ts *toolset) handleGetSkill(ctx context.Context, req *mcp.CallToolRequest, input getSkillInput) (*mcp.CallToolResult, any, error) {
	s, rerr := skills.Get(ts.cfg.SkillsDir(), ts.cfg.VaultPath, input.Name, ts.skillCache)
	if rerr != nil {
		return errResult(rerr), nil, nil
	}
	return textResult(s.Body), nil, nil
}

type getGlobalRulesInput struct{}

func (ts *toolset) handleGetGlobalRules(ctx context.Context, req *mcp.CallToolRequest, input getGlobalRulesInput) (*mcp.CallToolResult, any, error) {
	rules, rerr := skills.GlobalRules(ts.cfg.GlobalRulesPath())
	if rerr != nil {
		return errResult(rerr), nil, nil
	}
	return textResult(rules), nil, nil
}

type refreshSkillCacheInput struct{}

func (ts *toolset) handleRefreshSkillCache(ctx context.Context, req *mcp.CallToolRequest, input refreshSkillCacheInput) (*mcp.CallToolResult, any, error) {
	ts.skillCache.InvalidateAll()
	return textResult("skill cache invalidated"), nil, nil
}

type generateSkillInput struct {
	Name            string `json:"name" jsonschema:"Skill identifier (e.g. 'physics-teacher'); becomes the folder name"`
	Description     string `json:"description" jsonschema:"What the skill does, one or two sentences"`
	Instructions    string `json:"instructions" jsonschema:"Main instructions for the skill, markdown"`
	Tools           string `json:"tools,omitempty" jsonschema:"Comma-separated tool names (default: read, edit, search, obsidian-mcp)"`
	DefaultLocation string `json:"default_location,omitempty" jsonschema:"Default folder for notes this skill creates"`
}

func (ts *toolset) handleGenerateSkill(ctx context.Context, req *mcp.CallToolRequest, input generateSkillInput) (*mcp.CallToolResult, any, error) {
	if ts.guard != nil {
		v := ts.guard.CheckAll(map[string]string{
			"description": input.Description, "instructions": input.Instructions,
		}, []string{"description", "instructions"})
		if !v.Safe {
			return textResult("error: validation: " + guard.ErrRejected(v)), nil, nil
		}
	}
	name, rerr := skills.Generate(ts.cfg.SkillsDir(), ts.cfg.AgentDir, skills.GenerateOptions{
		Name: input.Name, Description: input.Description, Instructions: input.Instructions,
		Tools: input.Tools, DefaultLocation: input.DefaultLocation,
	}, time.Now(), ts.skillCache)
	if rerr != nil {
		return errResult(rerr), nil, nil
	}
	return textResult(fmt.Sprintf("created skill %q at %s/skills/%s/SKILL.md", name, ts.cfg.AgentDir, name)), nil, nil
}

type syncSkillsInput struct {
	Apply bool `json:"apply,omitempty" jsonschema:"Apply the fixable corrections instead of only reporting (default false)"`
}

func (ts *toolset) handleSyncSkills(ctx context.Context, req *mcp.CallToolRequest, input syncSkillsInput) (*mcp.CallToolResult, any, error) {
	issues, fixed, rerr := skills.Sync(ts.cfg.SkillsDir(), ts.cfg.AgentDir, input.Apply, ts.skillCache)
	if rerr != nil {
		return errResult(rerr), nil, nil
	}
	if len(issues) == 0 {
		return textResult("all skills are in sync"), nil, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d issue(s) found:\n", len(issues))
	fixableLeft := false
	for _, i := range issues {
		marker := ""
		if i.Fixable {
			marker = " (fixable)"
			fixableLeft = true
		}
		fmt.Fprintf(&b, "%s: %s%s\n", i.Skill, i.Issue, marker)
	}
	if input.Apply && len(fixed) > 0 {
		fmt.Fprintf(&b, "fixed: %s\n", strings.Join(fixed, ", "))
	} else if !input.Apply && fixableLeft {
		b.WriteString("run sync_skills with apply=true to apply the fixes\n")
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}
