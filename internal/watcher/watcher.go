// Package watcher monitors a vault for file changes and triggers
// incremental reindexing through internal/indexer, debouncing bursts of
// filesystem events the way editors and sync clients produce them.
package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sgx-labs/obsidianrag/internal/cache"
	"github.com/sgx-labs/obsidianrag/internal/config"
	"github.com/sgx-labs/obsidianrag/internal/indexer"
)

const debounceDelay = 2 * time.Second

// Watcher watches a vault for markdown file changes and reindexes them
// incrementally via the Indexer it was built with.
type Watcher struct {
	cfg       *config.Config
	ix        *indexer.Indexer
	noteCache *cache.NoteNameCache
	fsw       *fsnotify.Watcher
	excluded  map[string]bool

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer

	done chan struct{}
}

// New builds a Watcher for one vault. Call Start to begin watching.
func New(cfg *config.Config, ix *indexer.Indexer, noteCache *cache.NoteNameCache) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]bool, len(cfg.ExcludedFolders))
	for _, f := range cfg.ExcludedFolders {
		excluded[f] = true
	}
	return &Watcher{
		cfg: cfg, ix: ix, noteCache: noteCache, fsw: fsw, excluded: excluded,
		pending: make(map[string]bool),
		done:    make(chan struct{}),
	}, nil
}

// Start adds every vault directory to the underlying fsnotify watcher and
// begins the event loop in a background goroutine. Start returns once the
// initial directory walk completes; the event loop keeps running until Stop.
func (w *Watcher) Start() error {
	dirs := w.walkDirs()
	for _, d := range dirs {
		if err := w.fsw.Add(d); err != nil {
			slog.Warn("watcher: could not watch directory", "dir", d, "error", err)
		}
	}
	slog.Info("watcher: watching vault for changes", "dirs", len(dirs), "vault", w.cfg.VaultPath)
	go w.loop()
	return nil
}

// Stop closes the underlying fsnotify watcher and ends the event loop.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if !w.excluded[filepath.Base(event.Name)] {
					_ = w.fsw.Add(event.Name)
				}
			}
		}
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if err := w.ix.RemoveFile(event.Name); err != nil {
			slog.Warn("watcher: remove from index failed", "path", event.Name, "error", err)
		}
		if w.noteCache != nil {
			w.noteCache.Invalidate("")
		}
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		w.mu.Lock()
		w.pending[event.Name] = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timer = time.AfterFunc(debounceDelay, w.flush)
		w.mu.Unlock()
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	for _, p := range paths {
		if err := w.ix.IndexFile(p); err != nil {
			slog.Warn("watcher: reindex failed", "path", p, "error", err)
			continue
		}
		if w.noteCache != nil {
			w.noteCache.Invalidate("")
		}
	}
	if len(paths) > 0 {
		slog.Info("watcher: reindexed changed files", "count", len(paths))
	}
}

func (w *Watcher) walkDirs() []string {
	var dirs []string
	filepath.WalkDir(w.cfg.VaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if w.excluded[d.Name()] {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}
