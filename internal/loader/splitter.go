package loader

import "strings"

// DefaultChunkSize and DefaultChunkOverlap are the default recursive
// text-splitter tuning.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 300
)

// defaultSeparators is the split-point preference order, tried from most
// to least semantically meaningful.
var defaultSeparators = []string{"#", "##", "###", "####", "\n\n", "\n", " ", ""}

// Chunk is a contiguous slice of a Document's body, carrying a reference
// back to its source and the parent's flattened front-matter.
type Chunk struct {
	Text        string
	Source      string
	Links       []string
	FrontMatter map[string]string
}

// Split runs the recursive character splitter over doc's page content,
// producing overlapping chunks of at most chunkSize runes, preferring
// split points in defaultSeparators order. Each chunk inherits the
// parent's metadata.
func Split(doc Document, chunkSize, chunkOverlap int) []Chunk {
	pieces := recursiveSplit(doc.PageContent, defaultSeparators, chunkSize, chunkOverlap)
	flat := make(map[string]string, doc.FrontMatter.Len())
	for _, k := range doc.FrontMatter.Keys() {
		flat[k] = doc.FrontMatter.GetString(k)
	}
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:        p,
			Source:      doc.Source,
			Links:       doc.Links,
			FrontMatter: flat,
		})
	}
	return chunks
}

// recursiveSplit implements a LangChain-style RecursiveCharacterTextSplitter:
// try the first separator; if a resulting segment still exceeds chunkSize,
// recurse into it with the remaining separators; merge adjacent small
// segments into windows of at most chunkSize with chunkOverlap overlap.
func recursiveSplit(text string, separators []string, chunkSize, chunkOverlap int) []string {
	if len([]rune(text)) <= chunkSize {
		return []string{text}
	}

	sep := separators[0]
	rest := separators
	if len(separators) > 1 {
		rest = separators[1:]
	}

	var segments []string
	if sep == "" {
		// Last resort: hard character split.
		runes := []rune(text)
		for i := 0; i < len(runes); i += chunkSize {
			end := i + chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			segments = append(segments, string(runes[i:end]))
		}
		return segments
	}

	parts := strings.Split(text, sep)
	var out []string
	for i, part := range parts {
		piece := part
		if i < len(parts)-1 {
			piece = part + sep
		}
		if piece == "" {
			continue
		}
		if len([]rune(piece)) > chunkSize {
			out = append(out, mergeWithOverlap(segments, chunkSize, chunkOverlap)...)
			segments = nil
			out = append(out, recursiveSplit(piece, rest, chunkSize, chunkOverlap)...)
		} else {
			segments = append(segments, piece)
		}
	}

	return append(out, mergeWithOverlap(segments, chunkSize, chunkOverlap)...)
}

// mergeWithOverlap packs small segments into windows of at most chunkSize
// runes, carrying chunkOverlap runes of trailing context from one window
// into the next.
func mergeWithOverlap(segments []string, chunkSize, chunkOverlap int) []string {
	var out []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
		}
	}

	for _, seg := range segments {
		segLen := len([]rune(seg))
		if currentLen > 0 && currentLen+segLen > chunkSize {
			flush()
			room := chunkSize - segLen
			if room < 0 {
				room = 0
			}
			if room > chunkOverlap {
				room = chunkOverlap
			}
			overlap := tailRunes(current.String(), room)
			current.Reset()
			current.WriteString(overlap)
			currentLen = len([]rune(overlap))
		}
		current.WriteString(seg)
		currentLen += segLen
	}
	flush()
	return out
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
