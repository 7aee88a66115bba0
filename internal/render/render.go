// Package render turns a template and a recipient row into message text.
package render

import (
	"strings"

	"gmerge/internal/model"
)

// Render fills {field} placeholders in tmpl with values from row.
//
// Missing fields render as "". "{{" and "}}" are literal braces. A format
// suffix after ':' or '!' is accepted and ignored. On malformed input
// (unterminated '{', stray '}', empty field name) the template is returned
// unchanged. Render never fails.
func Render(tmpl string, row *model.Row) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return tmpl
			}
			spec := tmpl[i+1 : i+1+end]
			if strings.ContainsRune(spec, '{') {
				return tmpl
			}
			name := fieldName(spec)
			if name == "" {
				return tmpl
			}
			b.WriteString(row.Value(name))
			i += end + 2
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return tmpl
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func fieldName(spec string) string {
	if j := strings.IndexAny(spec, ":!"); j >= 0 {
		spec = spec[:j]
	}
	return strings.TrimSpace(spec)
}

// Compose renders a full message for one row: the subject, the HTML
// document, and a plain-text alternative.
func Compose(t model.Template, row *model.Row) (subject, html, text string) {
	subject = Render(t.Subject, row)
	body := Render(t.Body, row)

	var inner string
	if strings.EqualFold(t.Format, FormatMarkdown) {
		inner = Markdown(body)
	} else {
		inner = Markup(body)
	}
	html = HTMLDocument(inner)
	text = PlainText(inner)
	return subject, html, text
}
