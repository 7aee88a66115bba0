package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"gmerge/internal/model"
	"gmerge/internal/util"
)

// rowItem is one recipient row in the list.
type rowItem struct {
	index  int
	raw    string
	email  string
	valid  bool
	thread string
}

func (r rowItem) FilterValue() string { return r.raw }
func (r rowItem) Title() string {
	if !r.valid {
		return fmt.Sprintf("! %s", r.raw)
	}
	return r.email
}
func (r rowItem) Description() string {
	switch {
	case !r.valid:
		return "no valid address, will be skipped"
	case r.thread != "":
		return fmt.Sprintf("row %d  thread %s", r.index+1, r.thread)
	}
	return fmt.Sprintf("row %d", r.index+1)
}

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241")).
	PaddingTop(1)

func recipientsFooter() string {
	return footerStyle.Render("enter: preview  s: start  /: filter  q: quit  !=will be skipped")
}

func rowsToItems(t *model.Table) []list.Item {
	items := make([]list.Item, t.Len())
	for i, row := range t.Rows {
		raw := t.Email(row)
		email, ok := util.ExtractEmail(raw)
		items[i] = rowItem{
			index:  i,
			raw:    raw,
			email:  email,
			valid:  ok,
			thread: row.Value(model.ColumnThreadID),
		}
	}
	return items
}
