package web

import (
	"context"
	"sync"
	"time"

	"gmerge/internal/merge"
	"gmerge/internal/model"
)

// activeRun is a merge executing in this process.
type activeRun struct {
	id        string
	cancel    context.CancelFunc
	startedAt time.Time

	mu       sync.Mutex
	progress model.Progress
	result   *merge.Result
}

func (a *activeRun) update(p model.Progress) {
	a.mu.Lock()
	a.progress = p
	a.mu.Unlock()
}

func (a *activeRun) finish(res *merge.Result) {
	a.mu.Lock()
	a.result = res
	a.mu.Unlock()
}

// RunStatus is the JSON body of GET /runs/status.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Running   bool      `json:"running"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Last      string    `json:"last,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Backup    string    `json:"backup,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	Failures  []string  `json:"failures,omitempty"`
}

func (a *activeRun) status() RunStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := RunStatus{
		RunID:     a.id,
		StartedAt: a.startedAt,
		Running:   a.result == nil,
		Done:      a.progress.Done,
		Total:     a.progress.Total,
	}
	if o := a.progress.Outcome; o.Identifier != "" || o.Kind != "" {
		st.Last = o.Identifier + ": " + string(o.Kind)
	}
	if a.result != nil {
		rep := a.result.Report
		st.Done, st.Total = rep.Processed(), rep.Total
		st.Summary = rep.Summary()
		st.Cancelled = rep.Cancelled
		st.Warnings = a.result.Warnings
		for _, f := range rep.Failures {
			st.Failures = append(st.Failures, f.Identifier+": "+f.Error)
		}
		if a.result.Backup != nil {
			st.Backup = a.result.Backup.Name
		}
	}
	return st
}
