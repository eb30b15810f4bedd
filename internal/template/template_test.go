package template

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, layout, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(layout, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestExpandDates_BareDateToken(t *testing.T) {
	now := mustDate(t, "2006-01-02", "2024-06-03")
	out := ExpandDates("{{date}} and {{fecha}}", now)
	if out != "2024-06-03 and 2024-06-03" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExpandDates_SpecExample(t *testing.T) {
	// 2024-06-03 is a Monday.
	now := mustDate(t, "2006-01-02", "2024-06-03")
	tmpl := "# {{title}}\ncreated: {{date:YYYY-MM-DD}}\nday: {{date:dddd}}\n"
	out := ExpandFields(tmpl, Fields{Title: "Today"}, now)
	out = ExpandDates(out, now)
	want := "# Today\ncreated: 2024-06-03\nday: Lunes\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestFormatDate_AllTokens(t *testing.T) {
	// 2024-01-05 03:07:09 is a Friday.
	now := mustDate(t, "2006-01-02 15:04:05", "2024-01-05 03:07:09")
	cases := map[string]string{
		"YYYY": "2024",
		"YY":   "24",
		"MMMM": "Enero",
		"MMM":  "Ene",
		"MM":   "01",
		"M":    "1",
		"DD":   "05",
		"D":    "5",
		"dddd": "Viernes",
		"ddd":  "Vie",
		"HH":   "03",
		"mm":   "07",
		"ss":   "09",
	}
	for token, want := range cases {
		got := ExpandDates("{{date:"+token+"}}", now)
		if got != want {
			t.Errorf("token %q: expected %q, got %q", token, want, got)
		}
	}
}

func TestFormatDate_CompositeFormat(t *testing.T) {
	now := mustDate(t, "2006-01-02", "2024-12-25")
	out := ExpandDates("{{date:YYYY/MM/DD}}", now)
	if out != "2024/12/25" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExpandDates_LiteralCreatedUpdated(t *testing.T) {
	now := mustDate(t, "2006-01-02", "2024-06-03")
	text := "---\ncreated: YYYY-MM-DD\nupdated: YYYY-MM-DD\n---\n"
	out := ExpandDates(text, now)
	want := "---\ncreated: 2024-06-03\nupdated: 2024-06-03\n---\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestExpandFields_SpanishAliases(t *testing.T) {
	now := mustDate(t, "2006-01-02 15:04:05", "2024-06-03 14:30:00")
	f := Fields{Title: "T", Description: "D", Folder: "F", Tags: "a,b"}
	text := "{{titulo}} {{descripcion}} {{carpeta}} {{etiquetas}} {{hora}}"
	out := ExpandFields(text, f, now)
	if out != "T D F a,b 14:30" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExpandFields_EnglishAliases(t *testing.T) {
	now := mustDate(t, "2006-01-02 15:04:05", "2024-06-03 14:30:00")
	f := Fields{Title: "T", Description: "D", Folder: "F", Tags: "a,b"}
	text := "{{title}} {{description}} {{folder}} {{tags}} {{time}}"
	out := ExpandFields(text, f, now)
	if out != "T D F a,b 14:30" {
		t.Fatalf("unexpected output: %q", out)
	}
}
