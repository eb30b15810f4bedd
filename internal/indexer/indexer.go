// Package indexer orchestrates the file metadata tracker, the document
// loader/splitter, and the vector store to perform full rebuilds and
// incremental updates of the vault's index.
package indexer

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sgx-labs/obsidianrag/internal/config"
	"github.com/sgx-labs/obsidianrag/internal/embedding"
	"github.com/sgx-labs/obsidianrag/internal/loader"
	"github.com/sgx-labs/obsidianrag/internal/retriever"
	"github.com/sgx-labs/obsidianrag/internal/store"
	"github.com/sgx-labs/obsidianrag/internal/tracker"
)

// Stats reports the outcome of an EnsureIndex call.
type Stats struct {
	DocsProcessed int
	DocsNew       int
	DocsModified  int
	DocsDeleted   int
	IsIncremental bool
	TimeSeconds   float64
	Success       bool
}

// Indexer owns the tracker and vector store exclusively, and serializes
// itself with a single mutex so concurrent EnsureIndex calls coalesce:
// a caller arriving mid-build awaits and shares the in-flight result
// rather than starting a second build.
type Indexer struct {
	cfg       *config.Config
	db        *store.DB
	embedder  embedding.Provider
	retriever *retriever.Engine
	trk       *tracker.Tracker
	walkOpts  loader.WalkOptions

	mu        sync.Mutex
	inFlight  chan struct{}
	lastStats *Stats
	lastErr   error
}

// New constructs an Indexer for one vault/store/embedder triple. retr may
// be nil (keyword-only mode); when non-nil its in-memory BM25 index is
// rebuilt after every successful EnsureIndex call.
func New(cfg *config.Config, db *store.DB, embedder embedding.Provider, retr *retriever.Engine) *Indexer {
	opts := loader.WalkOptions{ExtraExcludedDirs: map[string]bool{}}
	for _, f := range cfg.ExcludedFolders {
		opts.ExtraExcludedDirs[f] = true
	}
	if cfg.TemplatesFolder != "" {
		opts.ExtraExcludedDirs[cfg.TemplatesFolder] = true
	}
	return &Indexer{
		cfg:       cfg,
		db:        db,
		embedder:  embedder,
		retriever: retr,
		trk:       tracker.Open(cfg.TrackerPath()),
		walkOpts:  opts,
	}
}

// EnsureIndex builds or incrementally updates the index. Only one
// build/update runs at a time; a caller arriving while one is already in
// flight awaits and receives that call's result rather than starting its
// own.
func (ix *Indexer) EnsureIndex(force bool) (*Stats, error) {
	ix.mu.Lock()
	if ix.inFlight != nil {
		ch := ix.inFlight
		ix.mu.Unlock()
		<-ch
		ix.mu.Lock()
		defer ix.mu.Unlock()
		return ix.lastStats, ix.lastErr
	}
	ch := make(chan struct{})
	ix.inFlight = ch
	ix.mu.Unlock()

	stats, err := ix.run(force)

	ix.mu.Lock()
	ix.lastStats, ix.lastErr = stats, err
	ix.inFlight = nil
	close(ch)
	ix.mu.Unlock()
	return stats, err
}

func (ix *Indexer) run(force bool) (*Stats, error) {
	start := time.Now()
	count, countErr := ix.db.CountChunks()
	needsFullBuild := force || countErr != nil || count == 0 || ix.trk.ShouldRebuild(ix.cfg.VaultPath)

	var stats *Stats
	var err error
	if needsFullBuild {
		stats, err = ix.fullBuild()
	} else {
		stats, err = ix.incremental()
	}
	stats.TimeSeconds = time.Since(start).Seconds()
	stats.Success = err == nil

	if err == nil && ix.retriever != nil {
		if rebuildErr := ix.retriever.Rebuild(); rebuildErr != nil {
			return stats, rebuildErr
		}
	}
	return stats, err
}

// fullBuild loads and splits every document, embeds every chunk, and only
// then commits to the store (Clear + Add). Building the full record set in
// memory before touching the store means a load/split/embed failure
// leaves any pre-existing store untouched.
func (ix *Indexer) fullBuild() (*Stats, error) {
	var paths []string
	err := loader.WalkMarkdownFiles(ix.cfg.VaultPath, ix.walkOpts, func(absPath string) error {
		paths = append(paths, absPath)
		return nil
	})
	if err != nil {
		return &Stats{}, fmt.Errorf("walk vault: %w", err)
	}

	records, err := ix.buildRecords(paths)
	if err != nil {
		return &Stats{}, err
	}

	if err := ix.db.Clear(); err != nil {
		return &Stats{}, fmt.Errorf("clear store: %w", err)
	}
	if err := ix.db.Add(records); err != nil {
		return &Stats{}, fmt.Errorf("add records: %w", err)
	}
	if ix.embedder != nil {
		_ = ix.db.SetEmbeddingMeta(ix.embedder.Name(), ix.embedder.Model(), ix.embedder.Dimensions())
	}
	if err := ix.trk.UpdateMetadata(ix.cfg.VaultPath, ix.walkOpts); err != nil {
		return &Stats{}, fmt.Errorf("update tracker: %w", err)
	}

	return &Stats{DocsProcessed: len(paths), IsIncremental: false}, nil
}

// incremental diffs against the tracker and applies delete-then-add for
// changed sources, leaving the tracker untouched on partial failure so an
// inconsistent store is never concealed as if it were consistent.
func (ix *Indexer) incremental() (*Stats, error) {
	changes, err := ix.trk.DetectChanges(ix.cfg.VaultPath, ix.walkOpts)
	if err != nil {
		return &Stats{}, fmt.Errorf("detect changes: %w", err)
	}
	if changes.Empty() {
		return &Stats{IsIncremental: true}, nil
	}

	toDelete := make([]string, 0, len(changes.Deleted)+len(changes.Modified))
	for _, rel := range append(append([]string{}, changes.Deleted...), changes.Modified...) {
		toDelete = append(toDelete, filepath.Join(ix.cfg.VaultPath, filepath.FromSlash(rel)))
	}
	if len(toDelete) > 0 {
		if err := ix.db.DeleteBySource(toDelete); err != nil {
			return &Stats{}, fmt.Errorf("delete stale chunks: %w", err)
		}
	}

	toLoad := make([]string, 0, len(changes.New)+len(changes.Modified))
	for _, rel := range append(append([]string{}, changes.New...), changes.Modified...) {
		toLoad = append(toLoad, filepath.Join(ix.cfg.VaultPath, filepath.FromSlash(rel)))
	}
	if len(toLoad) > 0 {
		records, err := ix.buildRecords(toLoad)
		if err != nil {
			// The delete above already landed; the store is now possibly
			// inconsistent. Surface the error rather than hide it — the
			// caller may re-run with force_rebuild.
			return &Stats{}, err
		}
		if err := ix.db.Add(records); err != nil {
			return &Stats{}, fmt.Errorf("add records: %w", err)
		}
	}

	if err := ix.trk.UpdateMetadata(ix.cfg.VaultPath, ix.walkOpts); err != nil {
		return &Stats{}, fmt.Errorf("update tracker: %w", err)
	}

	return &Stats{
		DocsNew:       len(changes.New),
		DocsModified:  len(changes.Modified),
		DocsDeleted:   len(changes.Deleted),
		DocsProcessed: len(changes.New) + len(changes.Modified),
		IsIncremental: true,
	}, nil
}

// buildRecords loads, splits, and embeds every path in paths, returning
// the flat slice of store.ChunkRecord ready for Add.
func (ix *Indexer) buildRecords(paths []string) ([]store.ChunkRecord, error) {
	var out []store.ChunkRecord
	for _, absPath := range paths {
		doc, ok, err := loader.Load(absPath)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(absPath), err)
		}
		if !ok {
			continue
		}
		chunks := loader.Split(doc, loader.DefaultChunkSize, loader.DefaultChunkOverlap)
		hash := chunkSourceHash(doc.PageContent)
		for i, c := range chunks {
			rec := store.ChunkRecord{
				Source:      c.Source,
				ChunkIndex:  i,
				Heading:     firstHeading(c.Text),
				Text:        c.Text,
				Links:       c.Links,
				FrontMatter: c.FrontMatter,
				ContentHash: hash,
			}
			if ix.embedder != nil {
				vec, embErr := ix.embedder.GetDocumentEmbedding(c.Text)
				if embErr != nil {
					return nil, fmt.Errorf("embed chunk %d of %s: %w", i, filepath.Base(absPath), embErr)
				}
				rec.Embedding = vec
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// IndexFile reindexes a single file in isolation (delete-by-source then
// add), used by the live-reindex watcher for a single debounced path
// rather than a full DetectChanges pass.
func (ix *Indexer) IndexFile(absPath string) error {
	if err := ix.db.DeleteBySource([]string{absPath}); err != nil {
		return err
	}
	records, err := ix.buildRecords([]string{absPath})
	if err != nil {
		return err
	}
	if err := ix.db.Add(records); err != nil {
		return err
	}
	if ix.retriever != nil {
		return ix.retriever.Rebuild()
	}
	return nil
}

// RemoveFile deletes a single source's chunks, used by the watcher on a
// filesystem remove event.
func (ix *Indexer) RemoveFile(absPath string) error {
	if err := ix.db.DeleteBySource([]string{absPath}); err != nil {
		return err
	}
	if ix.retriever != nil {
		return ix.retriever.Rebuild()
	}
	return nil
}

func firstHeading(text string) string {
	for _, line := range splitLines(text) {
		trimmed := trimLeadingHashes(line)
		if trimmed != line {
			return trimSpace(trimmed)
		}
	}
	return ""
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func trimLeadingHashes(line string) string {
	i := 0
	for i < len(line) && i < 6 && line[i] == '#' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != ' ' {
		return line
	}
	return line[i+1:]
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

func chunkSourceHash(content string) string {
	return fmt.Sprintf("%x", simpleHash(content))
}

// simpleHash is a fast, non-cryptographic content fingerprint for the
// chunk record's content_hash column (a debugging/diagnostic aid, not a
// security boundary — change detection is the tracker's (mtime, size)
// comparison).
func simpleHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
