package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// decodeFloat32 unpacks a sqlite-vec float[] blob: a flat little-endian
// float32 sequence, the format sqlite_vec.SerializeFloat32 produces.
func decodeFloat32(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// ChunkRecord is one persisted, embedded chunk — the unit the Indexer
// writes and the Hybrid Retriever reads back via Dump.
type ChunkRecord struct {
	ID          int64
	Source      string
	ChunkIndex  int
	Heading     string
	Text        string
	Links       []string
	FrontMatter map[string]string
	ContentHash string
	Modified    float64
	Embedding   []float32
}

// Add inserts records and their embeddings in a single transaction.
// Records for the same source as an existing delete-then-add pair should
// be deleted first via DeleteBySource to avoid stale chunk accumulation.
func (db *DB) Add(records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insertChunk, err := tx.Prepare(`INSERT INTO vault_chunks
		(source, chunk_index, heading, text, links, frontmatter, content_hash, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertChunk.Close()

	insertVec, err := tx.Prepare(`INSERT INTO vault_chunks_vec (chunk_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insertVec.Close()

	for _, r := range records {
		fm, err := json.Marshal(r.FrontMatter)
		if err != nil {
			return fmt.Errorf("marshal frontmatter for %s: %w", r.Source, err)
		}
		res, err := insertChunk.Exec(r.Source, r.ChunkIndex, r.Heading, r.Text,
			strings.Join(r.Links, ","), string(fm), r.ContentHash, r.Modified)
		if err != nil {
			return fmt.Errorf("insert chunk for %s: %w", r.Source, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if len(r.Embedding) == 0 {
			continue
		}
		vecBytes, err := sqlite_vec.SerializeFloat32(r.Embedding)
		if err != nil {
			return fmt.Errorf("serialize embedding for %s: %w", r.Source, err)
		}
		if _, err := insertVec.Exec(id, vecBytes); err != nil {
			return fmt.Errorf("insert embedding for %s: %w", r.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return db.RebuildFTS()
}

// DeleteBySource removes every chunk (and its embedding) for the given
// source paths, used before re-adding a modified file's chunks and before
// dropping a deleted file's chunks entirely.
func (db *DB) DeleteBySource(sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, src := range sources {
		rows, err := tx.Query(`SELECT id FROM vault_chunks WHERE source = ?`, src)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM vault_chunks_vec WHERE chunk_id = ?`, id); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`DELETE FROM vault_chunks WHERE source = ?`, src); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return db.RebuildFTS()
}

// Clear removes every chunk, embedding, and FTS row — used before a forced
// full rebuild.
func (db *DB) Clear() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec(`DELETE FROM vault_chunks_vec`); err != nil {
		return err
	}
	if _, err := db.conn.Exec(`DELETE FROM vault_chunks`); err != nil {
		return err
	}
	return db.RebuildFTS()
}

// Dump returns every chunk record with its embedding, the full corpus the
// Hybrid Retriever loads into its in-memory BM25 index at startup (or after
// any index_vault call), per spec.md §4.F/§4.G.
func (db *DB) Dump() ([]ChunkRecord, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.source, c.chunk_index, c.heading, c.text, c.links,
		       c.frontmatter, c.content_hash, c.modified, v.embedding
		FROM vault_chunks c
		LEFT JOIN vault_chunks_vec v ON v.chunk_id = c.id
		ORDER BY c.source, c.chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkRecord
	for rows.Next() {
		var (
			r         ChunkRecord
			linksStr  string
			fmStr     string
			embedding []byte
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.ChunkIndex, &r.Heading, &r.Text,
			&linksStr, &fmStr, &r.ContentHash, &r.Modified, &embedding); err != nil {
			return nil, err
		}
		if linksStr != "" {
			r.Links = strings.Split(linksStr, ",")
		}
		var fm map[string]string
		if err := json.Unmarshal([]byte(fmStr), &fm); err == nil {
			r.FrontMatter = fm
		}
		if len(embedding) > 0 {
			r.Embedding = decodeFloat32(embedding)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountChunks returns the total number of persisted chunks.
func (db *DB) CountChunks() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM vault_chunks`).Scan(&n)
	return n, err
}

// DistinctSources returns every distinct source path with at least one chunk.
func (db *DB) DistinctSources() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM vault_chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
