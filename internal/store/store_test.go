package store

import (
	"math"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAddAndDump(t *testing.T) {
	db := newTestDB(t)
	records := []ChunkRecord{
		{Source: "a.md", ChunkIndex: 0, Text: "alpha", Links: []string{"b"}, FrontMatter: map[string]string{"tags": "x"}, Embedding: []float32{1, 0, 0, 0}},
		{Source: "a.md", ChunkIndex: 1, Text: "alpha two", Embedding: []float32{0, 1, 0, 0}},
	}
	if err := db.Add(records); err != nil {
		t.Fatalf("Add: %v", err)
	}
	dumped, err := db.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(dumped) != 2 {
		t.Fatalf("expected 2 records, got %d", len(dumped))
	}
	if dumped[0].Text != "alpha" || dumped[0].Links[0] != "b" {
		t.Fatalf("unexpected first record: %+v", dumped[0])
	}
	if dumped[0].FrontMatter["tags"] != "x" {
		t.Fatalf("expected frontmatter round trip, got %+v", dumped[0].FrontMatter)
	}
	if len(dumped[0].Embedding) != 4 {
		t.Fatalf("expected embedding to decode to 4 dims, got %v", dumped[0].Embedding)
	}
}

func TestDeleteBySource(t *testing.T) {
	db := newTestDB(t)
	records := []ChunkRecord{
		{Source: "a.md", ChunkIndex: 0, Text: "alpha", Embedding: []float32{1, 0, 0, 0}},
		{Source: "b.md", ChunkIndex: 0, Text: "beta", Embedding: []float32{0, 1, 0, 0}},
	}
	if err := db.Add(records); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := db.DeleteBySource([]string{"a.md"}); err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	dumped, err := db.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(dumped) != 1 || dumped[0].Source != "b.md" {
		t.Fatalf("expected only b.md to remain, got %+v", dumped)
	}
}

func TestClear(t *testing.T) {
	db := newTestDB(t)
	if err := db.Add([]ChunkRecord{{Source: "a.md", Text: "x", Embedding: []float32{1, 0, 0, 0}}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := db.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, err := db.CountChunks()
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 chunks after Clear, got %d", count)
	}
}

func TestSimilaritySearch_NearestFirst(t *testing.T) {
	db := newTestDB(t)
	records := []ChunkRecord{
		{Source: "close.md", Text: "close", Embedding: []float32{1, 0, 0, 0}},
		{Source: "far.md", Text: "far", Embedding: []float32{-1, 0, 0, 0}},
		{Source: "mid.md", Text: "mid", Embedding: []float32{0.9, 0.1, 0, 0}},
	}
	if err := db.Add(records); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := db.SimilaritySearch([]float32{1, 0, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Source != "close.md" {
		t.Fatalf("expected close.md nearest, got %s", results[0].Source)
	}
	if results[len(results)-1].Source != "far.md" {
		t.Fatalf("expected far.md farthest, got %s", results[len(results)-1].Source)
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score out of [0,1] bound: %f", r.Score)
		}
	}
}

func TestScoreFromDistance_Bounds(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{2, 0},
		{1, 0.5},
		{3, 0}, // clamp above range
		{-1, 1}, // clamp below range
	}
	for _, c := range cases {
		got := ScoreFromDistance(c.distance)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("ScoreFromDistance(%f) = %f, want %f", c.distance, got, c.want)
		}
	}
}

func TestKeywordSearch_MatchesText(t *testing.T) {
	db := newTestDB(t)
	records := []ChunkRecord{
		{Source: "a.md", Text: "the quick brown fox"},
		{Source: "b.md", Text: "completely unrelated"},
	}
	if err := db.Add(records); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := db.KeywordSearch("fox", 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(results) != 1 || results[0].Source != "a.md" {
		t.Fatalf("expected only a.md to match, got %+v", results)
	}
}

func TestSetEmbeddingMetaAndCheck(t *testing.T) {
	db := newTestDB(t)
	if err := db.SetEmbeddingMeta("openai", "text-embedding-3-small", 1536); err != nil {
		t.Fatalf("SetEmbeddingMeta: %v", err)
	}
	if err := db.CheckEmbeddingMeta("openai", "text-embedding-3-small", 1536); err != nil {
		t.Fatalf("expected matching config to pass, got %v", err)
	}
	if err := db.CheckEmbeddingMeta("openai", "text-embedding-3-small", 768); err == nil {
		t.Fatal("expected dimension mismatch to be reported")
	}
}

func TestCheckEmbeddingMeta_NoPriorMetaIsOK(t *testing.T) {
	db := newTestDB(t)
	if err := db.CheckEmbeddingMeta("ollama", "nomic-embed-text", 768); err != nil {
		t.Fatalf("expected no error on a fresh store, got %v", err)
	}
}

func TestIntegrityCheck(t *testing.T) {
	db := newTestDB(t)
	if err := db.IntegrityCheck(); err != nil {
		t.Fatalf("expected a fresh in-memory db to pass integrity check, got %v", err)
	}
}

func TestDistinctSources(t *testing.T) {
	db := newTestDB(t)
	records := []ChunkRecord{
		{Source: "a.md", ChunkIndex: 0, Text: "1"},
		{Source: "a.md", ChunkIndex: 1, Text: "2"},
		{Source: "b.md", ChunkIndex: 0, Text: "3"},
	}
	if err := db.Add(records); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sources, err := db.DistinctSources()
	if err != nil {
		t.Fatalf("DistinctSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 distinct sources, got %v", sources)
	}
}
