// Package pathpolicy mediates every filesystem operation against the vault:
// canonicalization, vault confinement, forbidden globs, and restricted
// folders. Every read/write through the write path passes through
// CheckAccess. The indexer's vault walk does not call this package: it
// applies only the loader's excluded-directory and excluded-name filters.
package pathpolicy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sgx-labs/obsidianrag/internal/resultkind"
)

// Policy enforces path confinement for a single vault root. Forbidden
// patterns are loaded once and cached; Reload lets tests or config changes
// refresh them.
type Policy struct {
	root      string // canonical absolute vault root
	forbidden []string
	private   []string
}

// defaultPrivateGlobs are the default private-folder patterns.
var defaultPrivateGlobs = []string{"**/Privado/*", "**/Private/*", "_PRIVATE/**", "_PRIVATE"}

// New builds a Policy for the given vault root. vaultRoot must already be an
// existing directory; callers resolve relative CLI/env input before calling.
func New(vaultRoot string, forbiddenPatterns, privatePaths []string) (*Policy, error) {
	abs, err := filepath.Abs(vaultRoot)
	if err != nil {
		return nil, resultkind.New(resultkind.ConfigError, "resolve vault root: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, resultkind.New(resultkind.ConfigError, "vault path %q is not a directory", vaultRoot)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		abs = resolved
	}
	p := &Policy{root: abs}
	p.Reload(forbiddenPatterns, privatePaths)
	return p, nil
}

// Reload replaces the cached forbidden/private pattern sets.
func (p *Policy) Reload(forbiddenPatterns, privatePaths []string) {
	p.forbidden = append([]string(nil), forbiddenPatterns...)
	if len(privatePaths) > 0 {
		p.private = append([]string(nil), privatePaths...)
	} else {
		p.private = append([]string(nil), defaultPrivateGlobs...)
	}
}

// Root returns the canonical vault root.
func (p *Policy) Root() string { return p.root }

// LoadForbiddenPatternsFile parses a `.forbidden_paths`-style file: one glob
// pattern per line, `#`-prefixed lines and blank lines ignored.
func LoadForbiddenPatternsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// hasWindowsDrivePrefix reports whether s begins with a drive letter
// ("C:/..."), which is never a valid relative vault path.
func hasWindowsDrivePrefix(s string) bool {
	return len(s) >= 2 && s[1] == ':' && ((s[0] >= 'A' && s[0] <= 'Z') || (s[0] >= 'a' && s[0] <= 'z'))
}

// ValidateWithinVault canonicalizes relPath (vault-relative, slash or
// backslash separated) and returns the absolute path if, and only if, it
// resolves to a descendant of the vault root. Any ambiguity — null bytes,
// absolute input, symlink escape, unresolvable ancestor — is treated as
// deny (fail-closed).
func (p *Policy) ValidateWithinVault(relPath string) (string, *resultkind.Error) {
	if strings.ContainsRune(relPath, 0) {
		return "", resultkind.New(resultkind.Forbidden, "path rejected")
	}
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	if hasWindowsDrivePrefix(normalized) {
		return "", resultkind.New(resultkind.Forbidden, "path rejected")
	}
	if filepath.IsAbs(normalized) {
		return "", resultkind.New(resultkind.Forbidden, "path rejected")
	}
	clean := filepath.ToSlash(filepath.Clean(normalized))
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", resultkind.New(resultkind.Forbidden, "path rejected")
		}
	}

	full, err := filepath.Abs(filepath.Join(p.root, filepath.FromSlash(normalized)))
	if err != nil {
		return "", resultkind.New(resultkind.Forbidden, "path rejected")
	}
	if !strings.HasPrefix(full, p.root+string(filepath.Separator)) && full != p.root {
		return "", resultkind.New(resultkind.Forbidden, "path rejected")
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		// Not-yet-existing path (e.g. create()): walk up to the nearest
		// existing ancestor and verify that it is still inside the vault.
		ancestor := full
		for {
			ancestor = filepath.Dir(ancestor)
			if ancestor == "." || ancestor == string(filepath.Separator) {
				return "", resultkind.New(resultkind.Forbidden, "path rejected")
			}
			resolvedAncestor, aerr := filepath.EvalSymlinks(ancestor)
			if aerr != nil {
				continue
			}
			if !strings.HasPrefix(resolvedAncestor, p.root+string(filepath.Separator)) && resolvedAncestor != p.root {
				return "", resultkind.New(resultkind.Forbidden, "path rejected")
			}
			return full, nil
		}
	}
	if !strings.HasPrefix(resolved, p.root+string(filepath.Separator)) && resolved != p.root {
		return "", resultkind.New(resultkind.Forbidden, "path rejected")
	}
	return full, nil
}

// relSlash returns full's path relative to the vault root using forward
// slashes, for glob matching.
func (p *Policy) relSlash(full string) string {
	rel, err := filepath.Rel(p.root, full)
	if err != nil {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}

// IsForbidden reports whether full (an absolute, already-validated path)
// matches one of the cached forbidden glob patterns. `**` matches any
// number of path segments (gitignore-style).
func (p *Policy) IsForbidden(full string) (bool, string) {
	rel := p.relSlash(full)
	for _, pattern := range p.forbidden {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true, pattern
		}
	}
	return false, ""
}

// IsInRestricted reports whether full matches one of the given restricted
// globs (the private-folder policy), defaulting to the policy's cached
// private-path patterns when restricted is nil. Any match error is treated
// as restricted (fail-closed).
func (p *Policy) IsInRestricted(full string, restricted []string) bool {
	if restricted == nil {
		restricted = p.private
	}
	rel := p.relSlash(full)
	upperRel := strings.ToUpper(rel)
	for _, pattern := range restricted {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return true
		}
		if ok {
			return true
		}
		// Case-insensitive fallback for conventional "_PRIVATE" naming,
		// matching the defense-in-depth the original filters apply on
		// read paths too (macOS case-insensitive filesystems).
		if ok, _ := doublestar.Match(strings.ToUpper(pattern), upperRel); ok {
			return true
		}
	}
	return false
}

// CheckAccess is the single entry point composing ValidateWithinVault and
// the forbidden/restricted checks. operation is used only for error
// messages; the offending path itself is never echoed back.
func (p *Policy) CheckAccess(relPath, operation string) (string, *resultkind.Error) {
	full, verr := p.ValidateWithinVault(relPath)
	if verr != nil {
		return "", resultkind.New(resultkind.Forbidden, "%s denied: path is outside the vault or invalid", operation)
	}
	if forbidden, _ := p.IsForbidden(full); forbidden {
		return "", resultkind.New(resultkind.Forbidden, "%s denied: path matches a forbidden pattern", operation)
	}
	if p.IsInRestricted(full, nil) {
		return "", resultkind.New(resultkind.Forbidden, "%s denied: path is in a restricted folder", operation)
	}
	return full, nil
}

// FilterPrivatePaths removes entries whose vault-relative path is in a
// restricted folder from a result slice (defense-in-depth on the read
// path, applied again at search output even though CheckAccess already
// gates individual reads).
func (p *Policy) FilterPrivatePaths(paths []string) []string {
	out := paths[:0]
	for _, rel := range paths {
		full := filepath.Join(p.root, filepath.FromSlash(rel))
		if !p.IsInRestricted(full, nil) {
			out = append(out, rel)
		}
	}
	return out
}
