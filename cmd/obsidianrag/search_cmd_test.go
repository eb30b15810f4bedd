package main

import (
	"strings"
	"testing"
)

func TestSnippetFor_ShortTextUnchanged(t *testing.T) {
	if got := snippetFor("short text"); got != "short text" {
		t.Fatalf("unexpected snippet: %q", got)
	}
}

func TestSnippetFor_LongTextTruncatedWithEllipsis(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := snippetFor(long)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated snippet to end with ..., got %q", got)
	}
	if len(got) > 223 {
		t.Fatalf("snippet too long: %d runes", len(got))
	}
}

func TestSnippetFor_CollapsesNewlines(t *testing.T) {
	got := snippetFor("line one\nline two")
	if strings.Contains(got, "\n") {
		t.Fatalf("expected newlines collapsed, got %q", got)
	}
}
