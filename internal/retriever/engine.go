package retriever

import (
	"sort"

	"github.com/sgx-labs/obsidianrag/internal/embedding"
	"github.com/sgx-labs/obsidianrag/internal/store"
)

// rrfConstant is the reciprocal-rank-fusion smoothing constant: each leg
// contributes weight/(rank+c) rather than weight/rank, so a rank-1 hit in
// a short list doesn't overwhelm a rank-1 hit in a long one.
const rrfConstant = 60.0

// Chunk is a single retrieved passage with fused relevance.
type Chunk struct {
	Source      string
	ChunkIndex  int
	Heading     string
	Text        string
	Links       []string
	FrontMatter map[string]string
	Score       float64
}

// Reranker scores a (query, chunk) pair. Implementations may call out to a
// cross-encoder model; any error is treated as a re-ranker failure and the
// fused list is returned unchanged.
type Reranker interface {
	Score(query, text string) (float64, error)
}

// Config tunes fusion weights and leg fan-out.
type Config struct {
	BM25Weight   float64
	VectorWeight float64
	BM25K        int
	VectorK      int
	RerankTopN   int
}

// DefaultConfig returns the retriever's default tuning.
func DefaultConfig() Config {
	return Config{
		BM25Weight:   0.4,
		VectorWeight: 0.6,
		BM25K:        10,
		VectorK:      12,
		RerankTopN:   6,
	}
}

// Engine is the hybrid retriever: a BM25 index built once from the vector
// store's dump(), fused at query time with dense similarity search.
type Engine struct {
	db       *store.DB
	embedder embedding.Provider
	cfg      Config
	reranker Reranker

	bm25    *BM25Index
	records []store.ChunkRecord
}

// New constructs an Engine. Call Rebuild before the first Retrieve (or
// whenever the underlying store changes).
func New(db *store.DB, embedder embedding.Provider, cfg Config, reranker Reranker) *Engine {
	return &Engine{db: db, embedder: embedder, cfg: cfg, reranker: reranker}
}

// Rebuild pulls the full corpus via dump() and rebuilds the in-memory BM25
// index. The Indexer calls this after every index_vault.
func (e *Engine) Rebuild() error {
	records, err := e.db.Dump()
	if err != nil {
		return err
	}
	corpus := make([]string, len(records))
	for i, r := range records {
		corpus[i] = r.Text
	}
	e.records = records
	e.bm25 = BuildBM25Index(corpus)
	return nil
}

// Filter is a metadata key/value predicate; a non-empty Filter delegates
// straight to vector similarity search, pushed down into the store's SQL
// query rather than applied after the fact.
type Filter map[string]string

// Retrieve runs the hybrid retrieve(text, filter?) query: a plain query
// fuses the BM25 and dense legs by reciprocal-rank fusion, while a filtered
// query bypasses BM25 entirely and goes straight to a filtered dense
// search, since the in-memory BM25 index carries no front-matter to filter
// on.
func (e *Engine) Retrieve(query string, filter Filter) ([]Chunk, error) {
	if len(filter) > 0 {
		return e.vectorOnly(query, 10, filter)
	}

	bm25Hits := e.bm25TopK(query, e.cfg.BM25K)
	denseHits, err := e.denseTopK(query, e.cfg.VectorK, nil)
	if err != nil {
		return nil, err
	}

	fused := fuseReciprocalRank(bm25Hits, denseHits, e.cfg.BM25Weight, e.cfg.VectorWeight)

	if e.reranker == nil {
		return fused, nil
	}
	reranked, err := e.rerank(query, fused)
	if err != nil {
		return fused, nil // re-ranker failure: return the fused list unchanged
	}
	return reranked, nil
}

func (e *Engine) vectorOnly(query string, k int, filter Filter) ([]Chunk, error) {
	return e.denseTopK(query, k, filter)
}

// bm25TopK ranks the cached corpus and projects ids back to Chunk values in
// rank order (best first).
func (e *Engine) bm25TopK(query string, k int) []Chunk {
	if e.bm25 == nil {
		return nil
	}
	hits := e.bm25.TopK(query, k)
	out := make([]Chunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, toChunk(e.records[h.id]))
	}
	return out
}

// denseTopK embeds the query and runs a similarity search, in rank order.
// filter, if non-empty, is pushed down into the store's SQL query so rows
// that don't match never reach this process.
func (e *Engine) denseTopK(query string, k int, filter Filter) ([]Chunk, error) {
	if e.embedder == nil {
		return nil, nil
	}
	vec, err := e.embedder.GetQueryEmbedding(query)
	if err != nil {
		return nil, err
	}
	results, err := e.db.SimilaritySearch(vec, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, 0, len(results))
	for _, r := range results {
		out = append(out, Chunk{
			Source:      r.Source,
			ChunkIndex:  r.ChunkIndex,
			Heading:     r.Heading,
			Text:        r.Text,
			Links:       r.Links,
			FrontMatter: r.FrontMatter,
			Score:       r.Score,
		})
	}
	return out, nil
}

func toChunk(r store.ChunkRecord) Chunk {
	return Chunk{
		Source:      r.Source,
		ChunkIndex:  r.ChunkIndex,
		Heading:     r.Heading,
		Text:        r.Text,
		Links:       r.Links,
		FrontMatter: r.FrontMatter,
	}
}

func chunkKey(c Chunk) string {
	return c.Source + "#" + itoa(c.ChunkIndex)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// fuseReciprocalRank performs weighted reciprocal-score fusion: each leg
// contributes weight/(rank+c) to a chunk's fused score, where rank is the
// 1-indexed position within that leg's ranked list. Ties are broken by
// first-seen insertion order across the two legs, so fusion is stable.
func fuseReciprocalRank(bm25, dense []Chunk, bm25Weight, denseWeight float64) []Chunk {
	type entry struct {
		chunk Chunk
		score float64
		order int
	}
	byKey := make(map[string]*entry)
	var order []string

	add := func(list []Chunk, weight float64) {
		for rank, c := range list {
			key := chunkKey(c)
			contribution := weight / (float64(rank+1) + rrfConstant)
			if e, ok := byKey[key]; ok {
				e.score += contribution
			} else {
				byKey[key] = &entry{chunk: c, score: contribution, order: len(order)}
				order = append(order, key)
			}
		}
	}
	add(bm25, bm25Weight)
	add(dense, denseWeight)

	entries := make([]*entry, 0, len(order))
	for _, k := range order {
		entries = append(entries, byKey[k])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	out := make([]Chunk, len(entries))
	for i, e := range entries {
		out[i] = e.chunk
		out[i].Score = e.score
	}
	return out
}

// rerank scores every candidate with the configured Reranker and returns
// the top RerankTopN, highest first. Any scoring error aborts the whole
// pass (caller falls back to the fused list).
func (e *Engine) rerank(query string, candidates []Chunk) ([]Chunk, error) {
	type scored struct {
		chunk Chunk
		score float64
	}
	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		s, err := e.reranker.Score(query, c.Text)
		if err != nil {
			return nil, err
		}
		results = append(results, scored{chunk: c, score: s})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	topN := e.cfg.RerankTopN
	if topN <= 0 || topN > len(results) {
		topN = len(results)
	}
	out := make([]Chunk, topN)
	for i := 0; i < topN; i++ {
		out[i] = results[i].chunk
		out[i].Score = results[i].score
	}
	return out, nil
}
