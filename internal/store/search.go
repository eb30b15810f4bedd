package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// SearchResult is one scored hit from a similarity search, the dense leg
// the hybrid retriever fuses against its BM25 leg.
type SearchResult struct {
	ChunkID     int64
	Source      string
	ChunkIndex  int
	Heading     string
	Text        string
	Links       []string
	FrontMatter map[string]string
	Distance    float64
	Score       float64 // relevance in [0,1], higher is better
}

// ScoreFromDistance converts a cosine distance (vault_chunks_vec is
// configured distance_metric=cosine, range [0,2]) into a [0,1] relevance
// score where higher is better.
func ScoreFromDistance(distance float64) float64 {
	score := 1 - (distance / 2)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// knnFilterWidening is how far SimilaritySearch overfetches the KNN leg
// when a metadata filter is given, so that filtering rows out in SQL still
// leaves up to k survivors instead of starving the result set.
const knnFilterWidening = 20

// knnFilterMax bounds the widened KNN fetch regardless of k or widening.
const knnFilterMax = 2000

// SimilaritySearch runs a KNN query against vault_chunks_vec for the k
// nearest embeddings to queryVec, joined back to their chunk rows, and
// optionally restricted to rows whose front-matter matches every key/value
// pair in filter. The filter is applied in the SQL WHERE clause against
// vault_chunks, not by fetching an unfiltered top-k and discarding
// non-matches afterward. Results are ordered by ascending distance
// (nearest first).
func (db *DB) SimilaritySearch(queryVec []float32, k int, filter map[string]string) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	vecData, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	knnK := k
	filterClause, filterArgs := frontmatterFilterClause(filter)
	if filterClause != "" {
		knnK = k * knnFilterWidening
		if knnK > knnFilterMax {
			knnK = knnFilterMax
		}
	}

	args := make([]any, 0, 4+len(filterArgs))
	args = append(args, vecData, knnK)
	args = append(args, filterArgs...)
	args = append(args, k)

	query := `
		SELECT v.distance, c.id, c.source, c.chunk_index, c.heading, c.text, c.links, c.frontmatter
		FROM vault_chunks_vec v
		JOIN vault_chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ? AND k = ?` + filterClause + `
		ORDER BY v.distance
		LIMIT ?`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			r        SearchResult
			linksStr string
			fmStr    string
		)
		if err := rows.Scan(&r.Distance, &r.ChunkID, &r.Source, &r.ChunkIndex,
			&r.Heading, &r.Text, &linksStr, &fmStr); err != nil {
			return nil, err
		}
		r.Score = ScoreFromDistance(r.Distance)
		if linksStr != "" {
			r.Links = splitNonEmpty(linksStr, ",")
		}
		var fm map[string]string
		if err := json.Unmarshal([]byte(fmStr), &fm); err == nil {
			r.FrontMatter = fm
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// frontmatterFilterClause builds a " AND json_extract(...) = ?" clause per
// filter key, with both the key and value bound as query parameters (the
// key is never interpolated into the SQL or JSON path text directly).
// Keys are visited in sorted order so the generated SQL is deterministic.
func frontmatterFilterClause(filter map[string]string) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	args := make([]any, 0, len(filter)*2)
	for _, k := range keys {
		clauses = append(clauses, "json_extract(c.frontmatter, '$.' || ?) = ?")
		args = append(args, k, filter[k])
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// KeywordSearch runs an FTS5 MATCH query over source/heading/text, falling
// back to a LIKE scan when FTS5 is unavailable. Used by search_text for a
// lightweight literal-term query; the Hybrid Retriever does not call it.
func (db *DB) KeywordSearch(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if db.ftsAvailable {
		return db.ftsKeywordSearch(query, limit)
	}
	return db.likeKeywordSearch(query, limit)
}

func (db *DB) ftsKeywordSearch(query string, limit int) ([]SearchResult, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.source, c.chunk_index, c.heading, c.text, c.links, c.frontmatter, bm25(vault_chunks_fts)
		FROM vault_chunks_fts
		JOIN vault_chunks c ON c.id = vault_chunks_fts.rowid
		WHERE vault_chunks_fts MATCH ?
		ORDER BY bm25(vault_chunks_fts)
		LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return db.likeKeywordSearch(query, limit)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			r        SearchResult
			linksStr string
			fmStr    string
			rank     float64
		)
		if err := rows.Scan(&r.ChunkID, &r.Source, &r.ChunkIndex, &r.Heading,
			&r.Text, &linksStr, &fmStr, &rank); err != nil {
			return nil, err
		}
		r.Distance = rank
		if linksStr != "" {
			r.Links = splitNonEmpty(linksStr, ",")
		}
		var fm map[string]string
		if err := json.Unmarshal([]byte(fmStr), &fm); err == nil {
			r.FrontMatter = fm
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) likeKeywordSearch(query string, limit int) ([]SearchResult, error) {
	pattern := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, source, chunk_index, heading, text, links, frontmatter
		FROM vault_chunks
		WHERE text LIKE ? OR heading LIKE ?
		LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			r        SearchResult
			linksStr string
			fmStr    string
		)
		if err := rows.Scan(&r.ChunkID, &r.Source, &r.ChunkIndex, &r.Heading,
			&r.Text, &linksStr, &fmStr); err != nil {
			return nil, err
		}
		if linksStr != "" {
			r.Links = splitNonEmpty(linksStr, ",")
		}
		var fm map[string]string
		if err := json.Unmarshal([]byte(fmStr), &fm); err == nil {
			r.FrontMatter = fm
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if string(s[i]) == sep {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	if part := s[start:]; part != "" {
		out = append(out, part)
	}
	return out
}
