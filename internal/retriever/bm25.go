// Package retriever implements a hybrid retriever: an in-memory BM25
// index fused with the vector store's dense similarity search by
// weighted reciprocal-rank fusion, with an optional cross-encoder
// re-rank pass.
package retriever

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Doc is one tokenized document in the BM25 index.
type bm25Doc struct {
	id     int
	tokens []string
	freq   map[string]int
	length int
}

// BM25Index is an in-memory Okapi BM25 index over a fixed corpus,
// matching the defaults rank_bm25 (what LangChain's BM25Retriever wraps)
// uses: k1=1.5, b=0.75.
type BM25Index struct {
	docs       []bm25Doc
	df         map[string]int // document frequency per term
	avgDocLen  float64
	totalDocs  int
}

// tokenize lower-cases and splits on non-alphanumeric runs, the same
// coarse whitespace/punctuation tokenization rank_bm25 callers typically
// apply before indexing.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// BuildBM25Index constructs a BM25 index over corpus, where the slice
// index of each text is its external document id (callers map this back
// to a ChunkRecord index).
func BuildBM25Index(corpus []string) *BM25Index {
	idx := &BM25Index{df: make(map[string]int)}
	var totalLen int
	for i, text := range corpus {
		tokens := tokenize(text)
		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t]++
		}
		idx.docs = append(idx.docs, bm25Doc{id: i, tokens: tokens, freq: freq, length: len(tokens)})
		totalLen += len(tokens)
		for t := range freq {
			idx.df[t]++
		}
	}
	idx.totalDocs = len(corpus)
	if idx.totalDocs > 0 {
		idx.avgDocLen = float64(totalLen) / float64(idx.totalDocs)
	}
	return idx
}

// bm25Score scores a single document against a tokenized query.
func (idx *BM25Index) bm25Score(doc bm25Doc, queryTokens []string) float64 {
	var score float64
	for _, qt := range queryTokens {
		f := doc.freq[qt]
		if f == 0 {
			continue
		}
		df := idx.df[qt]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(idx.totalDocs)-float64(df)+0.5)/(float64(df)+0.5))
		num := float64(f) * (bm25K1 + 1)
		denom := float64(f) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/idx.avgDocLen)
		score += idf * num / denom
	}
	return score
}

// scoredID pairs a document id with a score for ranking.
type scoredID struct {
	id    int
	score float64
}

// TopK returns the top-k document ids by BM25 score, descending, ties
// broken by ascending id (stable, insertion-order preference).
func (idx *BM25Index) TopK(query string, k int) []scoredID {
	if idx.totalDocs == 0 || k <= 0 {
		return nil
	}
	queryTokens := tokenize(query)
	scored := make([]scoredID, 0, len(idx.docs))
	for _, doc := range idx.docs {
		s := idx.bm25Score(doc, queryTokens)
		if s > 0 {
			scored = append(scored, scoredID{id: doc.id, score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
