// Package folder implements the folder suggester: it queries the hybrid
// retriever, tallies the parent folders of the top results, and returns a
// ranked, confidence-scored candidate list. A keyword-map fallback covers
// the case where no retriever is available.
package folder

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/sgx-labs/obsidianrag/internal/retriever"
)

// Candidate is one ranked folder suggestion.
type Candidate struct {
	Folder       string
	Votes        int
	Confidence   float64
	SimilarNotes []string
}

// keywordMap is the static fallback used when no retriever is available
// (e.g. the embedding backend is unreachable).
var keywordMap = map[string][]string{
	"python":    {"02_Learning/Python"},
	"go":        {"02_Learning/Go"},
	"golang":    {"02_Learning/Go"},
	"journal":   {"03_Journal"},
	"diary":     {"03_Journal"},
	"meeting":   {"01_Work/Meetings"},
	"project":   {"01_Work/Projects"},
	"recipe":    {"05_Personal/Recipes"},
	"book":      {"04_Recursos/Books"},
	"reading":   {"04_Recursos/Books"},
}

// Suggest queries retr.Retrieve(content, nil), keeps the first limit
// results, tallies each result's source's parent folder (dropping
// root/"."), and
// returns the topK folders by vote count with confidence = votes / total.
func Suggest(retr *retriever.Engine, vaultRoot, content string, limit, topK int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	if topK <= 0 {
		topK = 3
	}

	results, err := retr.Retrieve(content, nil)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}

	type tally struct {
		votes   int
		samples []string
	}
	votes := make(map[string]*tally)
	var order []string

	for _, r := range results {
		folder := parentFolder(r.Source, vaultRoot)
		if folder == "" {
			continue
		}
		t, ok := votes[folder]
		if !ok {
			t = &tally{}
			votes[folder] = t
			order = append(order, folder)
		}
		t.votes++
		if len(t.samples) < 3 {
			t.samples = append(t.samples, stem(r.Source))
		}
	}

	totalVotes := 0
	for _, t := range votes {
		totalVotes += t.votes
	}
	if totalVotes == 0 {
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(order))
	for _, folder := range order {
		t := votes[folder]
		candidates = append(candidates, Candidate{
			Folder:       folder,
			Votes:        t.votes,
			Confidence:   float64(t.votes) / float64(totalVotes),
			SimilarNotes: t.samples,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Votes > candidates[j].Votes })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// SuggestByKeyword is the degraded-mode fallback used when the retriever
// is unavailable. It scans content for a known keyword and returns its
// mapped folder(s) with a flat, low confidence.
func SuggestByKeyword(content string) []Candidate {
	lower := strings.ToLower(content)
	var out []Candidate
	for kw, folders := range keywordMap {
		if strings.Contains(lower, kw) {
			for _, f := range folders {
				out = append(out, Candidate{Folder: f, Votes: 1, Confidence: 0.3})
			}
		}
	}
	return out
}

func parentFolder(source, vaultRoot string) string {
	rel, err := filepath.Rel(vaultRoot, source)
	if err != nil {
		rel = source
	}
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." || dir == "" {
		return ""
	}
	return dir
}

func stem(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
