// Package template expands `{{field}}` and `{{date:FORMAT}}` placeholders
// in template and note bodies, including a Moment.js-like token subset
// localized to Spanish month/weekday names, grounded on
// original_source/obsidian_mcp/tools/creation_logic.py::_process_date_placeholders.
package template

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// mesesES are the Spanish month names indexed by time.Month (1-12), matching
// creation_logic.py's MESES_ES.
var mesesES = [...]string{
	"", "Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// diasES are the Spanish weekday names indexed by time.Weekday (0=Sunday).
var diasES = [...]string{
	"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado",
}

var dateFormatPattern = regexp.MustCompile(`\{\{(?:date|fecha):([^}]+)\}\}`)
var dateBarePattern = regexp.MustCompile(`\{\{(?:date|fecha)\}\}`)
var createdUpdatedLiteral = regexp.MustCompile(`(?m)^(created|updated):\s*YYYY-MM-DD\s*$`)

// Fields are the simple caller-supplied placeholder substitutions applied
// before the date pass, with Spanish aliases per spec.md §4.C.
type Fields struct {
	Title       string
	Description string
	Folder      string
	Tags        string
}

// ExpandFields substitutes {{title}}/{{titulo}}, {{description}}/{{descripcion}},
// {{time}}/{{hora}}, {{folder}}/{{carpeta}}, {{tags}}/{{etiquetas}} from f and
// the current time. Run this before ExpandDates.
func ExpandFields(text string, f Fields, now time.Time) string {
	r := strings.NewReplacer(
		"{{title}}", f.Title, "{{titulo}}", f.Title,
		"{{description}}", f.Description, "{{descripcion}}", f.Description,
		"{{time}}", now.Format("15:04"), "{{hora}}", now.Format("15:04"),
		"{{folder}}", f.Folder, "{{carpeta}}", f.Folder,
		"{{tags}}", f.Tags, "{{etiquetas}}", f.Tags,
	)
	return r.Replace(text)
}

// ExpandDates substitutes {{date}}/{{fecha}} with YYYY-MM-DD, and
// {{date:FORMAT}}/{{fecha:FORMAT}} with the Moment.js-subset token
// translation of FORMAT, plus the literal `created:`/`updated:` right-hand
// value `YYYY-MM-DD`, all evaluated against now.
func ExpandDates(text string, now time.Time) string {
	text = dateBarePattern.ReplaceAllString(text, now.Format("2006-01-02"))
	text = dateFormatPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := dateFormatPattern.FindStringSubmatch(m)
		return formatDate(now, sub[1])
	})
	text = createdUpdatedLiteral.ReplaceAllStringFunc(text, func(m string) string {
		parts := strings.SplitN(m, ":", 2)
		return parts[0] + ": " + now.Format("2006-01-02")
	})
	return text
}

// tokenOrder lists tokens longest-first so e.g. "YYYY" is matched before
// "YY" and "MMMM" before "MM".
var tokenOrder = []string{"YYYY", "YY", "MMMM", "MMM", "MM", "M", "DD", "D", "dddd", "ddd", "HH", "mm", "ss"}

// formatDate translates a Moment.js-like format string using the token
// table in spec.md §4.C.
var tokenPattern = regexp.MustCompile(strings.Join(tokenOrder, "|"))

func formatDate(t time.Time, format string) string {
	return tokenPattern.ReplaceAllStringFunc(format, func(tok string) string {
		switch tok {
		case "YYYY":
			return strconv.Itoa(t.Year())
		case "YY":
			return strconv.Itoa(t.Year() % 100)
		case "MMMM":
			return mesesES[int(t.Month())]
		case "MMM":
			return firstRunes(mesesES[int(t.Month())], 3)
		case "MM":
			return twoDigit(int(t.Month()))
		case "M":
			return strconv.Itoa(int(t.Month()))
		case "DD":
			return twoDigit(t.Day())
		case "D":
			return strconv.Itoa(t.Day())
		case "dddd":
			return diasES[int(t.Weekday())]
		case "ddd":
			return firstRunes(diasES[int(t.Weekday())], 3)
		case "HH":
			return twoDigit(t.Hour())
		case "mm":
			return twoDigit(t.Minute())
		case "ss":
			return twoDigit(t.Second())
		}
		return tok
	})
}

// firstRunes truncates by runes, not bytes: "Miércoles" and "Sábado"
// carry accents inside their first three characters.
func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

