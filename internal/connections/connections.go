// Package connections implements the unlinked-connection analyzer: an
// all-pairs cosine-similarity sweep over filtered chunks that reports
// high-similarity note pairs with no existing wikilink between them,
// bounded by a wall-clock deadline.
package connections

import (
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sgx-labs/obsidianrag/internal/store"
)

// Suggestion is one reported unlinked pair, always ordered a < b by the
// chunk's position in the filtered set.
type Suggestion struct {
	NoteA, NoteB       string
	Similarity         float64
	FolderA, FolderB   string
	WordsA, WordsB     int
	SectionA, SectionB string
	Reason             string
}

// Options tunes the sweep.
type Options struct {
	Threshold      float64
	Limit          int
	IncludeFolders []string
	ExcludeMOCs    bool
	MinWords       int
	Deadline       time.Duration

	ExcludedFolders  []string
	ExcludedPatterns []string
}

// DefaultOptions returns the analyzer's default tuning.
func DefaultOptions() Options {
	return Options{
		Threshold:   0.70,
		Limit:       10,
		ExcludeMOCs: true,
		MinWords:    100,
		Deadline:    180 * time.Second,
	}
}

var mocSuffix = regexp.MustCompile(`(?i)MOC\.md$`)

// candidate is a surviving chunk carrying its L2-normalized embedding.
type candidate struct {
	record store.ChunkRecord
	vec    []float64
}

// Suggest runs the similarity sweep over db's full dump, relative to
// vaultRoot (used to compute folder and stem values). On deadline expiry
// it returns a single sentinel suggestion rather than a partial result.
func Suggest(db *store.DB, vaultRoot string, opts Options) ([]Suggestion, error) {
	deadline := time.Now().Add(opts.Deadline)

	records, err := db.Dump()
	if err != nil {
		return nil, err
	}

	excludedPatterns := compilePatterns(opts.ExcludedPatterns)
	candidates := make([]candidate, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		if wordCount(r.Text) < opts.MinWords {
			continue
		}
		if isExcluded(r.Source, vaultRoot, opts.ExcludedFolders, excludedPatterns) {
			continue
		}
		if opts.ExcludeMOCs && mocSuffix.MatchString(r.Source) {
			continue
		}
		if len(opts.IncludeFolders) > 0 && !startsWithAny(relFolder(r.Source, vaultRoot), opts.IncludeFolders) {
			continue
		}
		candidates = append(candidates, candidate{record: r, vec: normalize(r.Embedding)})
	}

	var out []Suggestion
	for i := 0; i < len(candidates); i++ {
		if time.Now().After(deadline) {
			return []Suggestion{timeoutSentinel()}, nil
		}
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.record.Source == b.record.Source {
				continue
			}
			sim := dot(a.vec, b.vec)
			if sim < opts.Threshold {
				continue
			}
			stemA := stem(a.record.Source)
			stemB := stem(b.record.Source)
			if linksTo(a.record.Links, stemB) || linksTo(b.record.Links, stemA) {
				continue
			}
			out = append(out, Suggestion{
				NoteA:      filepath.Base(a.record.Source),
				NoteB:      filepath.Base(b.record.Source),
				Similarity: sim,
				FolderA:    relFolder(a.record.Source, vaultRoot),
				FolderB:    relFolder(b.record.Source, vaultRoot),
				WordsA:     wordCount(a.record.Text),
				WordsB:     wordCount(b.record.Text),
				SectionA:   sectionOf(a.record),
				SectionB:   sectionOf(b.record),
				Reason:     "high semantic similarity, no existing link",
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func timeoutSentinel() Suggestion {
	return Suggestion{Similarity: 0, Reason: "timeout"}
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}

func isExcluded(source, vaultRoot string, excludedFolders []string, excludedPatterns []*regexp.Regexp) bool {
	rel := relSlash(source, vaultRoot)
	for _, f := range excludedFolders {
		f = filepath.ToSlash(f)
		if rel == f || strings.HasPrefix(rel, f+"/") {
			return true
		}
	}
	for _, re := range excludedPatterns {
		if re.MatchString(rel) || re.MatchString(filepath.Base(rel)) {
			return true
		}
	}
	return false
}

func startsWithAny(folder string, prefixes []string) bool {
	for _, p := range prefixes {
		p = filepath.ToSlash(p)
		if folder == p || strings.HasPrefix(folder, p+"/") || strings.HasPrefix(folder+"/", p+"/") {
			return true
		}
	}
	return false
}

func relSlash(abs, root string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func relFolder(abs, root string) string {
	rel := relSlash(abs, root)
	dir := filepath.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// stem strips the directory and `.md` extension from a source path, used
// as the filename-stem comparison for detecting an existing link.
func stem(absPath string) string {
	base := filepath.Base(absPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// linksTo reports whether targetStem appears among links, normalizing by
// stripping `|alias` and `#anchor` suffixes before comparing so an alias
// or heading-anchored wikilink still counts as a link to the target note.
// Comparison is case-insensitive, matching common vault conventions where
// wikilink casing drifts from the filename. A link via a completely
// different display alias with no shared stem still evades this check.
func linksTo(links []string, targetStem string) bool {
	target := strings.ToLower(targetStem)
	for _, l := range links {
		l = normalizeLinkTarget(l)
		if strings.EqualFold(l, target) {
			return true
		}
	}
	return false
}

func normalizeLinkTarget(link string) string {
	if idx := strings.Index(link, "|"); idx >= 0 {
		link = link[:idx]
	}
	if idx := strings.Index(link, "#"); idx >= 0 {
		link = link[:idx]
	}
	link = strings.TrimSpace(link)
	return strings.TrimSuffix(filepath.Base(link), filepath.Ext(link))
}

// sectionOf returns the chunk's heading, or a default label if none.
func sectionOf(r store.ChunkRecord) string {
	if r.Heading != "" {
		return r.Heading
	}
	return "(no heading)"
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var sumSq float64
	for i, x := range v {
		out[i] = float64(x)
		sumSq += out[i] * out[i]
	}
	if sumSq == 0 {
		return out
	}
	norm := math.Sqrt(sumSq)
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
