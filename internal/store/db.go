// Package store implements the Vector Store Adapter (spec.md §4.F): a
// SQLite + sqlite-vec backend supporting add, delete-by-source,
// similarity-search, and bulk export, plus an FTS5 table that backs
// KeywordSearch (the search_text tool). The Hybrid Retriever does not use
// the FTS5 table; its sparse side is the in-memory BM25 index.
// Grounded on the teacher's internal/store/db.go migration/table pattern.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DB wraps a SQLite connection with sqlite-vec and FTS5 support, the
// persistence layer the Indexer (§4.H) exclusively owns.
type DB struct {
	conn         *sql.DB
	mu           sync.Mutex // serializes writes; each write method takes it for its own duration
	ftsAvailable bool
	dims         int
}

// Open opens or creates the database at path, sized for dims-dimensional
// embeddings. A dims mismatch against an existing database is surfaced by
// CheckEmbeddingMeta, not enforced at open time.
func Open(path string, dims int) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}
	db := &DB{conn: conn, dims: dims}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests.
func OpenMemory(dims int) (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	db := &DB{conn: conn, dims: dims}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn returns the underlying sql.DB for direct queries (tests, doctor
// diagnostics).
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vault_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			heading TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			links TEXT NOT NULL DEFAULT '',
			frontmatter TEXT NOT NULL DEFAULT '{}',
			content_hash TEXT NOT NULL DEFAULT '',
			modified REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vault_chunks_source ON vault_chunks(source)`,
		`CREATE INDEX IF NOT EXISTS idx_vault_chunks_content_hash ON vault_chunks(content_hash)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vault_chunks_vec USING vec0(
			chunk_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		)`, db.dims),
	}
	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	if err := db.migrateFTS(); err != nil {
		return err
	}
	return nil
}

// migrateFTS creates an FTS5 content-synced virtual table for keyword
// fallback search. FTS5 may be unavailable on some SQLite builds; failure
// is non-fatal and falls back to LIKE-based search via ftsAvailable.
func (db *DB) migrateFTS() error {
	_, err := db.conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS vault_chunks_fts USING fts5(
		source, heading, text,
		content=vault_chunks, content_rowid=id
	)`)
	if err != nil {
		db.ftsAvailable = false
		return nil
	}
	db.ftsAvailable = true
	_, _ = db.conn.Exec(`INSERT INTO vault_chunks_fts(vault_chunks_fts) VALUES('rebuild')`)
	return nil
}

// FTSAvailable reports whether the FTS5 module is available.
func (db *DB) FTSAvailable() bool { return db.ftsAvailable }

// RebuildFTS rebuilds the FTS5 index from vault_chunks. No-op if FTS5 is
// unavailable.
func (db *DB) RebuildFTS() error {
	if !db.ftsAvailable {
		return nil
	}
	_, err := db.conn.Exec(`INSERT INTO vault_chunks_fts(vault_chunks_fts) VALUES('rebuild')`)
	return err
}

// GetMeta reads a value from schema_meta. Returns ("", false) if absent.
func (db *DB) GetMeta(key string) (string, bool) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMeta writes a key-value pair to schema_meta.
func (db *DB) SetMeta(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// SetEmbeddingMeta records the embedding provider/model/dims used at the
// last successful index, for CheckEmbeddingMeta to compare against.
func (db *DB) SetEmbeddingMeta(provider, model string, dims int) error {
	if err := db.SetMeta("embed_provider", provider); err != nil {
		return err
	}
	if err := db.SetMeta("embed_model", model); err != nil {
		return err
	}
	return db.SetMeta("embed_dims", strconv.Itoa(dims))
}

// CheckEmbeddingMeta compares the given embedding config against what was
// recorded at last index. Returns a dependency-kind-worthy error on a
// dimension mismatch (a hint for callers, not enforced by this layer).
func (db *DB) CheckEmbeddingMeta(provider, model string, dims int) error {
	storedProvider, hasProvider := db.GetMeta("embed_provider")
	storedModel, hasModel := db.GetMeta("embed_model")
	storedDimsStr, hasDims := db.GetMeta("embed_dims")
	if !hasProvider && !hasModel && !hasDims {
		return nil
	}
	storedDims, _ := strconv.Atoi(storedDimsStr)
	if hasDims && dims > 0 && storedDims > 0 && storedDims != dims {
		return fmt.Errorf("embedding dimensions changed from %d to %d — run index_vault(force=true) to rebuild", storedDims, dims)
	}
	if hasProvider && hasModel && (storedProvider != provider || storedModel != model) {
		return fmt.Errorf("embedding model changed from %s/%s to %s/%s — run index_vault(force=true) to rebuild",
			storedProvider, storedModel, provider, model)
	}
	return nil
}

// IntegrityCheck runs PRAGMA integrity_check and reports corruption.
func (db *DB) IntegrityCheck() error {
	var result string
	if err := db.conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
