// Package tui is the terminal front end for a single merge: review the
// recipients and rendered messages, start the run, watch it, cancel it.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"gmerge/internal/merge"
	"gmerge/internal/model"
)

type viewState int

const (
	viewRecipients viewState = iota // review rows before starting
	viewPreview                     // rendered message for one row
	viewRunning
	viewDone
)

// Executor runs a merge. *merge.Service satisfies it.
type Executor interface {
	Execute(ctx context.Context, req merge.Request) *merge.Result
}

type AppModel struct {
	// Core state
	exec   Executor
	req    merge.Request
	ctx    context.Context
	cancel context.CancelFunc
	Err    error
	status string

	// View state machine
	view       viewState
	cancelling bool
	quitAfter  bool
	progress   model.Progress
	result     *merge.Result

	// Sub-models
	recipients list.Model
	previewVP  viewport.Model
	spinner    spinner.Model

	// Layout
	width, height int

	// Program reference for sending messages from goroutines
	program *tea.Program
}

// SetProgram stores a reference to the tea.Program so the run goroutine can
// send progress messages back to the Update loop.
func (m *AppModel) SetProgram(p *tea.Program) {
	m.program = p
}

// NewAppModel prepares a merge of req.Table. Nothing is sent until the user
// starts the run. req.Progress is replaced.
func NewAppModel(ctx context.Context, exec Executor, req merge.Request) AppModel {
	rl := list.New(rowsToItems(req.Table), list.NewDefaultDelegate(), 0, 0)
	rl.Title = fmt.Sprintf("%s: %d recipients", modeTitle(req.Options.Mode), req.Table.Len())
	rl.KeyMap.Quit.SetKeys("q")

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ctx, cancel := context.WithCancel(ctx)
	return AppModel{
		exec:       exec,
		req:        req,
		ctx:        ctx,
		cancel:     cancel,
		view:       viewRecipients,
		recipients: rl,
		previewVP:  viewport.New(0, 0),
		spinner:    sp,
		progress:   model.Progress{Total: req.Table.Len()},
	}
}

// Result is the finished run, nil if the user quit without starting.
func (m *AppModel) Result() *merge.Result {
	return m.result
}

func (m *AppModel) Init() tea.Cmd {
	return nil
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recipients.SetSize(msg.Width, msg.Height-4) // room for footer
		m.previewVP.Width = msg.Width
		m.previewVP.Height = msg.Height - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case progressMsg:
		m.progress = model.Progress(msg)
		return m, nil

	case runDoneMsg:
		m.result = msg.result
		m.progress.Done = msg.result.Report.Processed()
		m.view = viewDone
		m.cancel()
		if m.quitAfter {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if m.view != viewRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewRecipients:
		m.recipients, cmd = m.recipients.Update(msg)
	case viewPreview:
		m.previewVP, cmd = m.previewVP.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch m.view {
	case viewRecipients:
		if key == "ctrl+c" {
			return m, tea.Quit
		}
		if m.recipients.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.recipients, cmd = m.recipients.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.openPreview()
		case "s":
			return m.startRun()
		}
		var cmd tea.Cmd
		m.recipients, cmd = m.recipients.Update(msg)
		return m, cmd

	case viewPreview:
		switch key {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			m.view = viewRecipients
			return m, nil
		case "s":
			return m.startRun()
		}
		var cmd tea.Cmd
		m.previewVP, cmd = m.previewVP.Update(msg)
		return m, cmd

	case viewRunning:
		switch key {
		case "ctrl+c":
			// Cancel and leave as soon as the run has wound down.
			m.quitAfter = true
			return m.requestCancel()
		case "c", "esc":
			return m.requestCancel()
		}
		return m, nil

	case viewDone:
		switch key {
		case "ctrl+c", "q", "enter", "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *AppModel) openPreview() (tea.Model, tea.Cmd) {
	selected := m.recipients.SelectedItem()
	if selected == nil {
		return m, nil
	}
	ri := selected.(rowItem)
	p, err := merge.PreviewRow(m.req.Table, m.req.Template, ri.index)
	if err != nil {
		m.status = err.Error()
		return m, clearStatusAfter(2 * time.Second)
	}
	m.previewVP.SetContent(previewContent(p))
	m.previewVP.GotoTop()
	m.view = viewPreview
	return m, nil
}

func (m *AppModel) startRun() (tea.Model, tea.Cmd) {
	m.view = viewRunning
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, m.runCmd())
}

func (m *AppModel) requestCancel() (tea.Model, tea.Cmd) {
	if !m.cancelling {
		m.cancelling = true
		m.cancel()
	}
	return m, nil
}

// Commands

func (m *AppModel) runCmd() tea.Cmd {
	req := m.req
	req.Progress = func(p model.Progress) {
		if m.program != nil {
			m.program.Send(progressMsg(p))
		}
	}
	return func() tea.Msg {
		return runDoneMsg{result: m.exec.Execute(m.ctx, req)}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	var b strings.Builder
	switch m.view {
	case viewRecipients:
		b.WriteString(m.recipients.View())
		b.WriteString("\n")
		b.WriteString(recipientsFooter())
	case viewPreview:
		b.WriteString(m.previewVP.View())
		b.WriteString("\n")
		b.WriteString(previewFooter())
	case viewRunning:
		b.WriteString(runningView(m.spinner.View(), m.progress, m.cancelling, m.width))
	case viewDone:
		b.WriteString(doneView(m.result))
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}

func modeTitle(mode model.Mode) string {
	switch mode {
	case model.ModeFollowUp:
		return "Follow-up"
	case model.ModeDraft:
		return "Drafts"
	}
	return "New messages"
}
