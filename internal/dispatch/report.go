package dispatch

import (
	"slices"
	"time"

	"gmerge/internal/model"
)

// ReportBuilder accumulates outcomes while a run is in progress.
type ReportBuilder struct {
	r model.Report
}

func NewReportBuilder(runID string, mode model.Mode, label string, table *model.Table, started time.Time) *ReportBuilder {
	return &ReportBuilder{r: model.Report{
		RunID:     runID,
		Mode:      mode,
		Label:     label,
		StartedAt: started,
		Total:     table.Len(),
		Table:     table,
	}}
}

func (b *ReportBuilder) Add(o model.Outcome) {
	switch o.Kind {
	case model.OutcomeSent:
		b.r.Sent++
	case model.OutcomeSkipped:
		b.r.SkippedIDs = append(b.r.SkippedIDs, o.Identifier)
	case model.OutcomeFailed:
		b.r.Failures = append(b.r.Failures, model.Failure{Identifier: o.Identifier, Error: o.Error})
	}
	b.r.Outcomes = append(b.r.Outcomes, o)
}

// Processed is the number of outcomes recorded so far.
func (b *ReportBuilder) Processed() int { return len(b.r.Outcomes) }

func (b *ReportBuilder) Cancel() { b.r.Cancelled = true }

// Build returns a snapshot of the report. Later Add calls do not affect it.
func (b *ReportBuilder) Build(finished time.Time) *model.Report {
	r := b.r
	r.FinishedAt = finished
	r.SkippedIDs = slices.Clone(b.r.SkippedIDs)
	r.Failures = slices.Clone(b.r.Failures)
	r.Outcomes = slices.Clone(b.r.Outcomes)
	return &r
}
