// Package guard screens untrusted free-text input before it reaches the
// front-matter codec or the vault filesystem. go-promptguard's
// multi-detector runs over create_note/search_and_replace text fields so a
// note body cannot smuggle a prompt-injection payload into the vault that a
// later semantic_query response would hand straight back to an agent.
// Rejections are appended to a JSONL audit log.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mdombrov-33/go-promptguard/detector"
)

// Screen wraps a go-promptguard detector instance plus its audit sink.
type Screen struct {
	detector  detector.Detector
	auditPath string
}

// New builds a Screen writing its audit trail under
// <vault>/.obsidianrag/guard-audit.log. The threshold is stricter than
// go-promptguard's 0.7 default, every built-in detector is enabled, and no
// LLM judge is configured so every create_note/search_and_replace call
// stays sub-ms.
func New(vaultRoot string) *Screen {
	return &Screen{
		detector: detector.New(
			detector.WithThreshold(0.6),
			detector.WithAllDetectors(),
			detector.WithMaxInputLength(20_000),
		),
		auditPath: filepath.Join(vaultRoot, ".obsidianrag", "guard-audit.log"),
	}
}

// Verdict is one screened field's outcome.
type Verdict struct {
	Field string
	Safe  bool
}

// Check screens a single free-text field (title, body, find/replace
// strings). A zero-length field is always safe — empty input cannot carry
// an injection payload, and callers should not pay the detector's cost for
// fields the caller left blank.
func (s *Screen) Check(field, text string) Verdict {
	if s == nil || len(text) == 0 {
		return Verdict{Field: field, Safe: true}
	}
	result := s.detector.Detect(context.Background(), text)
	v := Verdict{Field: field, Safe: result.Safe}
	if !result.Safe {
		s.append(v)
	}
	return v
}

// CheckAll screens every named field and returns the first unsafe verdict,
// or a safe verdict once every field clears. Fields are checked in the
// order given so callers can report the first offending field's name.
func (s *Screen) CheckAll(fields map[string]string, order []string) Verdict {
	for _, name := range order {
		if v := s.Check(name, fields[name]); !v.Safe {
			return v
		}
	}
	return Verdict{Safe: true}
}

// auditEntry is one line in the append-only guard-audit.log.
type auditEntry struct {
	Timestamp string `json:"timestamp"`
	Field     string `json:"field"`
}

func (s *Screen) append(v Verdict) {
	entry := auditEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Field:     v.Field,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.auditPath), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(s.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(data)
}

// ErrRejected renders a Validation-kind message for a rejected field,
// naming the field but never echoing the flagged text itself.
func ErrRejected(v Verdict) string {
	return fmt.Sprintf("%s was rejected: content resembles a prompt-injection attempt", v.Field)
}
