package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmerge/internal/dispatch"
	"gmerge/internal/merge"
	"gmerge/internal/model"
)

type fakeExecutor struct {
	gotCtx context.Context
	gotReq merge.Request
	result *merge.Result
}

func (f *fakeExecutor) Execute(ctx context.Context, req merge.Request) *merge.Result {
	f.gotCtx = ctx
	f.gotReq = req
	return f.result
}

func newModel(t *testing.T, exec Executor) *AppModel {
	t.Helper()
	tbl, err := model.NewTable([]string{"Name", "Email"}, [][]string{
		{"Ann", "ann@example.com"},
		{"Bob", "bob at example"},
	})
	require.NoError(t, err)
	m := NewAppModel(context.Background(), exec, merge.Request{
		Table:    tbl,
		Template: model.Template{Subject: "Hi {Name}", Body: "Hello **{Name}**"},
		Options:  dispatch.Options{Mode: model.ModeNew},
	})
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return &m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRowsToItems(t *testing.T) {
	m := newModel(t, &fakeExecutor{})
	items := m.recipients.Items()
	require.Len(t, items, 2)

	ann := items[0].(rowItem)
	assert.True(t, ann.valid)
	assert.Equal(t, "ann@example.com", ann.Title())

	bob := items[1].(rowItem)
	assert.False(t, bob.valid)
	assert.Contains(t, bob.Description(), "skipped")
}

func TestPreviewAndBack(t *testing.T) {
	m := newModel(t, &fakeExecutor{})

	m.Update(key("enter"))
	require.Equal(t, viewPreview, m.view)
	assert.Contains(t, m.View(), "Subject: Hi Ann")
	assert.Contains(t, m.View(), "Hello Ann")

	m.Update(key("esc"))
	assert.Equal(t, viewRecipients, m.view)
}

func TestRunLifecycle(t *testing.T) {
	rep := &model.Report{Mode: model.ModeNew, Sent: 1, Total: 2, SkippedIDs: []string{"bob at example"},
		Outcomes: make([]model.Outcome, 2)}
	exec := &fakeExecutor{result: &merge.Result{Report: rep}}
	m := newModel(t, exec)

	_, cmd := m.Update(key("s"))
	require.NotNil(t, cmd)
	assert.Equal(t, viewRunning, m.view)

	msg := m.runCmd()()
	assert.NotNil(t, exec.gotReq.Progress)
	assert.Equal(t, "Hi {Name}", exec.gotReq.Template.Subject)

	m.Update(progressMsg(model.Progress{Done: 1, Total: 2}))
	assert.Contains(t, m.View(), "Sending 1 of 2")

	_, cmd = m.Update(msg)
	assert.Nil(t, cmd)
	assert.Equal(t, viewDone, m.view)
	assert.Same(t, exec.result, m.Result())
	assert.Contains(t, m.View(), "Processed 1 of 2 emails: 1 skipped, 0 failed")
}

func TestCancelDuringRun(t *testing.T) {
	exec := &fakeExecutor{result: &merge.Result{Report: &model.Report{Cancelled: true}}}
	m := newModel(t, exec)
	m.Update(key("s"))

	m.Update(key("c"))
	assert.True(t, m.cancelling)
	assert.Error(t, m.ctx.Err())
	assert.Contains(t, m.View(), "Cancelling")
}

func TestCtrlCQuitsAfterRunWindsDown(t *testing.T) {
	exec := &fakeExecutor{result: &merge.Result{Report: &model.Report{Cancelled: true}}}
	m := newModel(t, exec)
	m.Update(key("s"))

	_, cmd := m.Update(key("ctrl+c"))
	assert.Nil(t, cmd, "must wait for the run to stop")
	assert.True(t, m.quitAfter)

	_, cmd = m.Update(runDoneMsg{result: exec.result})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total, width int
		filled             int
	}{
		{0, 10, 10, 0},
		{5, 10, 10, 5},
		{10, 10, 10, 10},
		{3, 0, 10, 0},
	}
	for _, tt := range tests {
		bar := progressBar(tt.done, tt.total, tt.width)
		assert.Equal(t, tt.width-tt.filled, countRune(bar, '░'), "%d/%d", tt.done, tt.total)
	}
}

func countRune(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c == r {
			n++
		}
	}
	return n
}
