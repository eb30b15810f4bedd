// Package tracker implements the File Metadata Tracker: a persistent
// path -> (mtime, size, fingerprint) map used to detect new/modified/deleted
// files between indexing runs, grounded on
// original_source/obsidian_mcp/semantic/indexer.py's load_or_create_db
// change-detection flow (the FileMetadataTracker it calls was filtered out
// of the retrieval pack; this package reconstructs its JSON-file contract
// from spec.md §4.D and the call sites that remain).
package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/sgx-labs/obsidianrag/internal/loader"
)

const schemaVersion = 1

// Entry is a single tracked file's state.
type Entry struct {
	MtimeNanos  int64  `json:"mtime_nanos"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentHash string `json:"content_hash"`
}

// document is the persisted shape of <vault>/.obsidianrag/metadata.json.
type document struct {
	SchemaVersion int              `json:"schema_version"`
	VaultRoot     string           `json:"vault_root"`
	Entries       map[string]Entry `json:"entries"`
}

// Tracker wraps the on-disk metadata document for one vault.
type Tracker struct {
	path string
	doc  document
}

// Open loads the tracker document at path, or starts an empty one if
// absent or unparsable — ShouldRebuild will report true in that case, so
// callers perform a full build and then UpdateMetadata to (re)establish it.
func Open(path string) *Tracker {
	t := &Tracker{path: path, doc: document{Entries: map[string]Entry{}}}
	data, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return t
	}
	if d.Entries == nil {
		d.Entries = map[string]Entry{}
	}
	t.doc = d
	return t
}

// ShouldRebuild reports true when the tracker file is absent, the schema
// version mismatches, the recorded vault root differs from vaultRoot, or
// no entries are recorded.
func (t *Tracker) ShouldRebuild(vaultRoot string) bool {
	if t.doc.SchemaVersion != schemaVersion {
		return true
	}
	if t.doc.VaultRoot != "" && t.doc.VaultRoot != vaultRoot {
		return true
	}
	return len(t.doc.Entries) == 0
}

// Changes is the (new, modified, deleted) triple DetectChanges returns.
type Changes struct {
	New      []string
	Modified []string
	Deleted  []string
}

// Empty reports whether all three sets are empty.
func (c Changes) Empty() bool {
	return len(c.New) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// DetectChanges walks vaultRoot honoring the loader's exclusion rules and
// compares each discovered file against the tracker's recorded state. A
// path is new if absent from the tracker, modified if its (mtime, size)
// differ, deleted if tracked but missing on disk. Fingerprints are
// recorded by UpdateMetadata; the diff itself never needs to hash a file
// whose (mtime, size) still match.
func (t *Tracker) DetectChanges(vaultRoot string, opts loader.WalkOptions) (Changes, error) {
	seen := make(map[string]bool, len(t.doc.Entries))
	var changes Changes

	err := loader.WalkMarkdownFiles(vaultRoot, opts, func(absPath string) error {
		rel, relErr := filepath.Rel(vaultRoot, absPath)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		info, statErr := os.Stat(absPath)
		if statErr != nil {
			return nil
		}
		prior, tracked := t.doc.Entries[rel]
		if !tracked {
			changes.New = append(changes.New, rel)
			return nil
		}
		if info.ModTime().UnixNano() == prior.MtimeNanos && info.Size() == prior.SizeBytes {
			return nil
		}
		changes.Modified = append(changes.Modified, rel)
		return nil
	})
	if err != nil {
		return Changes{}, err
	}

	for rel := range t.doc.Entries {
		if !seen[rel] {
			changes.Deleted = append(changes.Deleted, rel)
		}
	}
	return changes, nil
}

// UpdateMetadata overwrites the in-memory document with a fresh walk of
// vaultRoot and persists it atomically (write-temp-then-rename).
func (t *Tracker) UpdateMetadata(vaultRoot string, opts loader.WalkOptions) error {
	entries := make(map[string]Entry)
	err := loader.WalkMarkdownFiles(vaultRoot, opts, func(absPath string) error {
		rel, relErr := filepath.Rel(vaultRoot, absPath)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		info, statErr := os.Stat(absPath)
		if statErr != nil {
			return nil
		}
		hash, hashErr := fingerprint(absPath)
		if hashErr != nil {
			return nil
		}
		entries[rel] = Entry{
			MtimeNanos:  info.ModTime().UnixNano(),
			SizeBytes:   info.Size(),
			ContentHash: hash,
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.doc = document{SchemaVersion: schemaVersion, VaultRoot: vaultRoot, Entries: entries}
	return t.save()
}

// RemovePaths deletes the given vault-relative paths from the tracker and
// persists the result, so a subsequent DetectChanges no longer reports
// those paths as deleted. The indexer does not call it; its incremental
// runs re-record the whole vault through UpdateMetadata.
func (t *Tracker) RemovePaths(paths []string) error {
	for _, p := range paths {
		delete(t.doc.Entries, filepath.ToSlash(p))
	}
	return t.save()
}

func (t *Tracker) save() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(t.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}

func fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
