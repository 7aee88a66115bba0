package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"gmerge/internal/merge"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")).
	PaddingBottom(1)

func previewHeader(to, subject string) string {
	return headerStyle.Render(fmt.Sprintf("To: %s\nSubject: %s", to, subject))
}

func previewContent(p *merge.Preview) string {
	to := p.To
	if !p.Valid {
		to = fmt.Sprintf("%q (skipped, no valid address)", p.RawEmail)
	}
	return previewHeader(to, p.Subject) + "\n\n" + p.Text
}

func previewFooter() string {
	return footerStyle.Render("s: start  esc: back  q: quit")
}
