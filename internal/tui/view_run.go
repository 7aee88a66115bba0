package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gmerge/internal/merge"
	"gmerge/internal/model"
)

var (
	barStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// progressBar draws done/total in width cells.
func progressBar(done, total, width int) string {
	if width <= 0 {
		width = 40
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	filled = min(filled, width)
	return barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
}

func runningView(spin string, p model.Progress, cancelling bool, width int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Sending %d of %d\n\n", spin, p.Done, p.Total)
	b.WriteString(progressBar(p.Done, p.Total, min(width-2, 60)))
	b.WriteString("\n\n")
	if o := p.Outcome; o.Kind != "" {
		fmt.Fprintf(&b, "last: %s %s\n", o.Identifier, outcomeText(o))
	}
	if cancelling {
		b.WriteString(warnStyle.Render("Cancelling after the current message..."))
	} else {
		b.WriteString(footerStyle.Render("c: cancel  ctrl+c: cancel and quit"))
	}
	return b.String()
}

func outcomeText(o model.Outcome) string {
	switch o.Kind {
	case model.OutcomeSkipped:
		return warnStyle.Render("skipped: " + o.Reason)
	case model.OutcomeFailed:
		return failStyle.Render("failed: " + o.Error)
	}
	return string(o.Kind)
}

func doneView(res *merge.Result) string {
	if res == nil || res.Report == nil {
		return "Nothing was sent.\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(res.Report.Summary()))
	b.WriteString("\n")
	for _, f := range res.Report.Failures {
		b.WriteString(failStyle.Render(fmt.Sprintf("  %s: %s", f.Identifier, f.Error)))
		b.WriteString("\n")
	}
	if len(res.Report.SkippedIDs) > 0 {
		fmt.Fprintf(&b, "  skipped: %s\n", strings.Join(res.Report.SkippedIDs, ", "))
	}
	if res.Backup != nil {
		fmt.Fprintf(&b, "\nBackup: %s\n", res.Backup.Location)
	}
	for _, w := range res.Warnings {
		b.WriteString(warnStyle.Render("warning: " + w))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("q: quit"))
	return b.String()
}
