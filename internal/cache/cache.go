// Package cache implements a TTL cache for note-name lookups and a
// memoized-per-vault skill cache. Both are read-mostly, so coarse mutual
// exclusion is acceptable. Each cache is a caller-owned struct rather than
// package-level mutable state, so a process can serve more than one vault.
package cache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sgx-labs/obsidianrag/internal/loader"
)

// noteEntry is a single note-name cache slot: the timestamp it was
// populated at and the resolved path, or "" if the lookup found nothing
// (a negative cache entry, still subject to TTL and existence re-check).
type noteEntry struct {
	at   time.Time
	path string
}

// NoteNameCache resolves a lowercased file stem to an absolute path,
// memoizing rglob lookups for ttl. A cached hit is re-checked for
// existence before being returned, so a deleted file is never served stale.
type NoteNameCache struct {
	mu        sync.Mutex
	entries   map[string]noteEntry
	ttl       time.Duration
	vaultRoot string
}

// NewNoteNameCache builds a cache scoped to one vault root with the given
// TTL.
func NewNoteNameCache(vaultRoot string, ttl time.Duration) *NoteNameCache {
	return &NoteNameCache{entries: make(map[string]noteEntry), ttl: ttl, vaultRoot: vaultRoot}
}

// Resolve returns the absolute path of the note whose file stem matches
// name (case-insensitive), or ("", false) if none is found. A cache miss
// or expired entry triggers a fresh vault walk; a cache hit is re-verified
// with os.Stat-equivalent existence before being trusted.
func (c *NoteNameCache) Resolve(name string) (string, bool) {
	key := strings.ToLower(name)

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && time.Since(entry.at) < c.ttl {
		if entry.path == "" {
			return "", false
		}
		if pathExists(entry.path) {
			return entry.path, true
		}
		// Stale hit: the file was removed since caching. Fall through to
		// a fresh walk rather than serving a dangling path.
	}

	path := c.walk(key)
	c.mu.Lock()
	c.entries[key] = noteEntry{at: time.Now(), path: path}
	c.mu.Unlock()

	if path == "" {
		return "", false
	}
	return path, true
}

func (c *NoteNameCache) walk(lowerStem string) string {
	var found string
	_ = loader.WalkMarkdownFiles(c.vaultRoot, loader.WalkOptions{}, func(absPath string) error {
		if found != "" {
			return nil
		}
		base := filepath.Base(absPath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if strings.ToLower(stem) == lowerStem {
			found = absPath
		}
		return nil
	})
	return found
}

// Invalidate clears one key (lowercased), or the whole cache if name is "".
func (c *NoteNameCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" {
		c.entries = make(map[string]noteEntry)
		return
	}
	delete(c.entries, strings.ToLower(name))
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SkillCache memoizes loaded skill sets per vault root until explicitly
// invalidated. The value type is left to the caller (internal/skills)
// to avoid an import cycle; Get/Set operate on an opaque any.
type SkillCache struct {
	mu    sync.Mutex
	byVault map[string]any
}

// NewSkillCache returns an empty, ready-to-use skill cache.
func NewSkillCache() *SkillCache {
	return &SkillCache{byVault: make(map[string]any)}
}

// Get returns the cached value for vaultRoot, if any.
func (c *SkillCache) Get(vaultRoot string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.byVault[vaultRoot]
	return v, ok
}

// Set stores value for vaultRoot.
func (c *SkillCache) Set(vaultRoot string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byVault[vaultRoot] = value
}

// InvalidateAll clears every cached vault's skill set.
func (c *SkillCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byVault = make(map[string]any)
}
