package merge

import (
	"fmt"

	"gmerge/internal/model"
	"gmerge/internal/render"
	"gmerge/internal/util"
)

// Preview is a rendered message for one row.
type Preview struct {
	Row      int
	To       string
	Valid    bool
	Subject  string
	HTML     string
	Text     string
	RawEmail string
}

// PreviewRow renders the template against row i without sending anything.
func PreviewRow(t *model.Table, tmpl model.Template, i int) (*Preview, error) {
	if t == nil || i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("preview row %d: out of range", i)
	}
	row := t.Rows[i]
	raw := t.Email(row)
	to, ok := util.ExtractEmail(raw)
	subject, html, text := render.Compose(tmpl, row)
	return &Preview{
		Row:      i,
		To:       to,
		Valid:    ok,
		Subject:  subject,
		HTML:     html,
		Text:     text,
		RawEmail: raw,
	}, nil
}

// FindRow returns the index of the first row whose Email cell equals
// email, or -1.
func FindRow(t *model.Table, email string) int {
	for i, r := range t.Rows {
		if t.Email(r) == email {
			return i
		}
	}
	return -1
}
