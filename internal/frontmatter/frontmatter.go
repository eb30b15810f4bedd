// Package frontmatter implements the front-matter codec: splitting a note
// into its leading YAML block and body, parsing that block into an
// order-preserving mapping, and serializing it back out.
//
// Front-matter is parsed into an OrderedMap backed by gopkg.in/yaml.v3's
// Node API rather than a fixed Go struct, so round-tripping preserves the
// insertion order of arbitrary caller-supplied keys instead of reordering
// or dropping ones a struct doesn't know about.
package frontmatter

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reserved front-matter keys.
const (
	KeyTitle     = "title"
	KeyTags      = "tags"
	KeyCreated   = "created"
	KeyUpdated   = "updated"
	KeyAgent     = "agente_creador"
	DateLayout   = "2006-01-02"
)

// anchorPattern matches a leading front-matter block: `---\n...\n---\n?`
// with dot-all semantics, anchored at byte 0.
var anchorPattern = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*\n?`)

// OrderedMap is an insertion-order-preserving string-keyed mapping of
// scalar or list-of-string values.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any)}
}

// Set assigns value to key, appending key to the insertion order only if
// it is new.
func (m *OrderedMap) Set(key string, value any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// GetString returns key's value if it is a string, or "" if it is absent
// or holds any other type.
func (m *OrderedMap) GetString(key string) string {
	v, ok := m.values[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string { return append([]string(nil), m.keys...) }

// Len reports the number of entries.
func (m *OrderedMap) Len() int { return len(m.keys) }

// Clone returns a deep-enough copy safe to mutate independently.
func (m *OrderedMap) Clone() *OrderedMap {
	out := NewOrderedMap()
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// Tags returns the `tags` entry normalized to a list of strings: a
// comma-separated scalar string is split and trimmed; a YAML list is
// coerced element-wise; each tag has its leading `#` stripped.
func (m *OrderedMap) Tags() []string {
	v, ok := m.values[KeyTags]
	if !ok {
		return nil
	}
	var raw []string
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				raw = append(raw, part)
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					raw = append(raw, s)
				}
			}
		}
	case []string:
		raw = t
	}
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		out = append(out, strings.TrimPrefix(tag, "#"))
	}
	return out
}

// Split parses text's leading front-matter block. If the anchor does not
// match, or the captured YAML does not parse or does not yield a mapping,
// it returns an empty OrderedMap and the original text unchanged — never
// an error.
func Split(text string) (*OrderedMap, string) {
	loc := anchorPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return NewOrderedMap(), text
	}
	yamlBlock := text[loc[2]:loc[3]]
	body := text[loc[1]:]
	body = strings.TrimPrefix(body, "\n")

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(yamlBlock), &node); err != nil {
		return NewOrderedMap(), text
	}
	m, ok := nodeToOrderedMap(&node)
	if !ok {
		return NewOrderedMap(), text
	}
	return m, body
}

// nodeToOrderedMap converts a parsed yaml.Node document into an
// OrderedMap, preserving key order as it appears in the source. Returns
// false if the document's root is not a mapping.
func nodeToOrderedMap(doc *yaml.Node) (*OrderedMap, bool) {
	root := doc
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil, false
		}
		root = doc.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, false
	}
	m := NewOrderedMap()
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		m.Set(key, decodeScalarOrList(root.Content[i+1]))
	}
	return m, true
}

func decodeScalarOrList(n *yaml.Node) any {
	switch n.Kind {
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			list = append(list, decodeScalarOrList(item))
		}
		return list
	case yaml.MappingNode:
		var v map[string]any
		_ = n.Decode(&v)
		return v
	default:
		var v any
		_ = n.Decode(&v)
		return v
	}
}

// Build serializes an OrderedMap into a `---\n<yaml>---\n\n` block,
// preserving key insertion order and allowing non-ASCII content.
func Build(m *OrderedMap) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(encodeYAML(m))
	b.WriteString("---\n\n")
	return b.String()
}

// encodeYAML renders an OrderedMap as a block-style YAML mapping in
// insertion order, flattening list values to YAML block sequences.
func encodeYAML(m *OrderedMap) string {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		v, _ := m.Get(k)
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		node.Content = append(node.Content, keyNode, valueNode(v))
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return ""
	}
	return string(out)
}

func valueNode(v any) *yaml.Node {
	switch t := v.(type) {
	case []string:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, s := range t {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s})
		}
		return seq
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			seq.Content = append(seq.Content, valueNode(item))
		}
		return seq
	default:
		n := &yaml.Node{}
		_ = n.Encode(v)
		return n
	}
}

// MergeOnCreate builds the front-matter for a brand-new note: starts from
// extra (front-matter parsed out of a caller-supplied body, if any),
// overwrites title and created unconditionally, unions tags preserving
// order of first occurrence, and sets agente_creador iff non-empty.
func MergeOnCreate(title, nowDate string, explicitTags []string, agent string, extra *OrderedMap) *OrderedMap {
	m := NewOrderedMap()
	if extra != nil {
		for _, k := range extra.Keys() {
			v, _ := extra.Get(k)
			m.Set(k, v)
		}
	}
	m.Set(KeyTitle, title)
	m.Set(KeyCreated, nowDate)

	existing := m.Tags()
	seen := make(map[string]bool, len(existing))
	union := make([]string, 0, len(existing)+len(explicitTags))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			union = append(union, t)
		}
	}
	for _, t := range explicitTags {
		t = strings.TrimSpace(strings.TrimPrefix(t, "#"))
		if t != "" && !seen[t] {
			seen[t] = true
			union = append(union, t)
		}
	}
	if len(union) > 0 {
		m.Set(KeyTags, union)
	}
	if agent != "" {
		m.Set(KeyAgent, agent)
	}
	return m
}

// updatedLinePattern matches a front-matter `updated:` line.
var updatedLinePattern = regexp.MustCompile(`(?m)^updated:.*$`)
var createdLinePattern = regexp.MustCompile(`(?m)^created:.*$`)

// TouchUpdatedOnEdit sets `updated: nowDate` in text's front-matter: it
// replaces an existing updated: line, else inserts one right after
// created:, else inserts one just before the closing `---`.
func TouchUpdatedOnEdit(text, nowDate string) string {
	if !strings.HasPrefix(text, "---") {
		return text
	}
	newLine := "updated: " + nowDate

	loc := anchorPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text
	}
	block := text[loc[2]:loc[3]]
	rest := text[loc[1]:]

	if updatedLinePattern.MatchString(block) {
		block = updatedLinePattern.ReplaceAllString(block, newLine)
	} else if createdLinePattern.MatchString(block) {
		block = createdLinePattern.ReplaceAllStringFunc(block, func(m string) string {
			return m + "\n" + newLine
		})
	} else {
		block = strings.TrimRight(block, "\n") + "\n" + newLine
	}
	return "---\n" + block + "\n---\n" + rest
}
