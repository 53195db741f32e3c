package providers

import (
	"strconv"
	"strings"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
)

type attr struct {
	name  string
	value string
}

// xmlWriter emits elements in call order. It never iterates maps, so equal
// input always renders to equal bytes.
type xmlWriter struct {
	b strings.Builder
}

func (w *xmlWriter) open(name string, attrs ...attr) {
	w.b.WriteByte('<')
	w.b.WriteString(name)
	for _, a := range attrs {
		w.b.WriteByte(' ')
		w.b.WriteString(a.name)
		w.b.WriteString(`="`)
		w.b.WriteString(attrEscaper.Replace(a.value))
		w.b.WriteByte('"')
	}
	w.b.WriteByte('>')
}

func (w *xmlWriter) close(name string) {
	w.b.WriteString("</")
	w.b.WriteString(name)
	w.b.WriteByte('>')
}

func (w *xmlWriter) text(s string) {
	w.b.WriteString(textEscaper.Replace(s))
}

func (w *xmlWriter) newline() {
	w.b.WriteByte('\n')
}

// element writes <name attrs>text</name> followed by a newline.
func (w *xmlWriter) element(name, text string, attrs ...attr) {
	w.open(name, attrs...)
	w.text(text)
	w.close(name)
	w.newline()
}

// field writes the element only when the value is present and not blank.
func (w *xmlWriter) field(name string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	w.element(name, *value)
}

func (w *xmlWriter) floatField(name string, value *float64) {
	if value == nil {
		return
	}
	w.element(name, formatFloat(*value))
}

func (w *xmlWriter) listField(name string, values []string) {
	var kept []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return
	}
	w.element(name, strings.Join(kept, ", "))
}

func (w *xmlWriter) String() string {
	return w.b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
