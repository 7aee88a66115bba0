package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmerge/internal/model"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRunner(t *fakeTransport, opts ...RunnerOption) *Runner {
	base := []RunnerOption{WithPacer(NoDelay{}), WithLogger(quietLogger)}
	return NewRunner(t, append(base, opts...)...)
}

var tmpl = model.Template{Subject: "Hello {Name}", Body: "Hi **{Name}**"}

func TestRunMixedOutcomes(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.failFor["c@x.com"] = errQuota
	table := contacts("a@x.com", "not-an-email", "c@x.com")

	rep := newTestRunner(ft).Run(context.Background(), table, tmpl, Options{Mode: model.ModeNew})

	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, []string{"not-an-email"}, rep.SkippedIDs)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, model.Failure{Identifier: "c@x.com", Error: "quota exceeded"}, rep.Failures[0])
	assert.Equal(t, 3, rep.Processed())
	assert.Equal(t, 3, rep.Total)
	assert.False(t, rep.Cancelled)

	require.Len(t, rep.Table.Rows, 3)
	first := rep.Table.Rows[0]
	assert.Equal(t, "t1", first.Value(model.ColumnThreadID))
	assert.Equal(t, "<m1@mail.example.com>", first.Value(model.ColumnRfcMessageID))
	assert.Empty(t, rep.Table.Rows[1].Value(model.ColumnThreadID))
	assert.Empty(t, rep.Table.Rows[2].Value(model.ColumnThreadID))

	require.Len(t, ft.sent, 1)
	assert.Equal(t, "Hello a", ft.sent[0].Subject)
	assert.Contains(t, ft.sent[0].HTMLBody, "Hi <b>a</b>")
	assert.Equal(t, "Processed 1 of 3 emails: 1 skipped, 1 failed", rep.Summary())
}

func TestRunSkipsRowWithOnlyEmptyCells(t *testing.T) {
	t.Parallel()

	table, err := model.NewTable([]string{"Name", "Email"}, [][]string{
		{"Ann", "a@x.com"},
		{"", ""},
		{"Bob", "b@x.com"},
	})
	require.NoError(t, err)

	ft := newFakeTransport()
	rep := newTestRunner(ft).Run(context.Background(), table, tmpl, Options{Mode: model.ModeNew})

	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, []string{""}, rep.SkippedIDs)
	require.Len(t, rep.Outcomes, 3)
	assert.Equal(t, model.OutcomeSkipped, rep.Outcomes[1].Kind)
	assert.Equal(t, ReasonInvalidEmail, rep.Outcomes[1].Reason)
	assert.Len(t, rep.Table.Rows, 3)
}

func TestRunOutcomesAreOrdered(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	rep := newTestRunner(ft).Run(context.Background(), contacts("a@x.com", "bad", "b@x.com"), tmpl, Options{})

	require.Len(t, rep.Outcomes, 3)
	for i, o := range rep.Outcomes {
		assert.Equal(t, i, o.Row)
	}
	assert.Equal(t, model.OutcomeSent, rep.Outcomes[0].Kind)
	assert.Equal(t, model.OutcomeSkipped, rep.Outcomes[1].Kind)
	assert.Equal(t, ReasonInvalidEmail, rep.Outcomes[1].Reason)
	assert.Equal(t, model.OutcomeSent, rep.Outcomes[2].Kind)
	assert.Equal(t, model.ModeNew, rep.Mode)
}

func TestRunNewModeAppliesLabel(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.labels = []model.Label{{ID: "Label_9", Name: "mail merge sent"}}

	rep := newTestRunner(ft).Run(context.Background(), contacts("a@x.com", "b@x.com"), tmpl,
		Options{Mode: model.ModeNew, Label: "Mail Merge Sent"})

	assert.Equal(t, 2, rep.Sent)
	assert.Zero(t, ft.createCalls)
	assert.Equal(t, []string{"Label_9"}, ft.modified["m1"])
	assert.Equal(t, []string{"Label_9"}, ft.modified["m2"])
}

func TestRunLabelFailuresAreWarnings(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.listErr = errors.New("forbidden")
	rep := newTestRunner(ft).Run(context.Background(), contacts("a@x.com"), tmpl,
		Options{Mode: model.ModeNew, Label: "x"})
	assert.Equal(t, 1, rep.Sent)
	assert.Empty(t, ft.modified)

	ft = newFakeTransport()
	ft.modifyErr = errors.New("label gone")
	rep = newTestRunner(ft).Run(context.Background(), contacts("a@x.com"), tmpl,
		Options{Mode: model.ModeNew, Label: "x"})
	assert.Equal(t, 1, rep.Sent)
	assert.Empty(t, rep.Failures)
}

func TestRunDraftModeNeverLabels(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	rep := newTestRunner(ft).Run(context.Background(), contacts("a@x.com"), tmpl,
		Options{Mode: model.ModeDraft, Label: "Mail Merge Sent"})

	assert.Equal(t, 1, rep.Sent)
	assert.Len(t, ft.drafts, 1)
	assert.Empty(t, ft.sent)
	assert.Empty(t, ft.modified)
	assert.Zero(t, ft.createCalls)
	assert.Equal(t, "Drafted 1 of 1 emails: 0 skipped, 0 failed", rep.Summary())
}

func TestRunFollowUpThreadsReplies(t *testing.T) {
	t.Parallel()

	table, err := model.NewTable(
		[]string{"Name", "email", "ThreadId", "RfcMessageId"},
		[][]string{{"Ann", "ann@x.com", "thread-7", "<orig@mail.example.com>"}},
	)
	require.NoError(t, err)

	ft := newFakeTransport()
	rep := newTestRunner(ft).Run(context.Background(), table, tmpl,
		Options{Mode: model.ModeFollowUp, Label: "ignored"})

	require.Len(t, ft.sent, 1)
	msg := ft.sent[0]
	assert.Equal(t, "thread-7", msg.ThreadID)
	assert.Equal(t, "<orig@mail.example.com>", msg.InReplyTo)
	assert.Equal(t, "<orig@mail.example.com>", msg.References)
	assert.Empty(t, ft.modified)
	assert.Equal(t, "thread-7", rep.Table.Rows[0].Value(model.ColumnThreadID))
}

func TestRunMetadataFailureKeepsRowSent(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.headersErr = errors.New("503")
	rep := newTestRunner(ft).Run(context.Background(), contacts("a@x.com"), tmpl, Options{})

	assert.Equal(t, 1, rep.Sent)
	row := rep.Table.Rows[0]
	assert.Equal(t, "t1", row.Value(model.ColumnThreadID))
	assert.Empty(t, row.Value(model.ColumnRfcMessageID))
}

func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ft := newFakeTransport()
	rep := newTestRunner(ft).Run(ctx, contacts("a@x.com", "b@x.com"), tmpl, Options{})

	assert.True(t, rep.Cancelled)
	assert.Zero(t, rep.Processed())
	assert.Empty(t, ft.sent)
	assert.Equal(t, 2, rep.Table.Len())
}

func TestRunCancelledMidRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := newFakeTransport()
	ft.onSend = func(msg *model.Message) {
		if msg.To == "b@x.com" {
			cancel()
		}
	}
	table := contacts("a@x.com", "b@x.com", "c@x.com", "d@x.com")

	var progress []model.Progress
	rep := newTestRunner(ft, WithProgress(func(p model.Progress) { progress = append(progress, p) })).
		Run(ctx, table, tmpl, Options{Delay: time.Hour})

	assert.True(t, rep.Cancelled)
	require.Equal(t, 2, rep.Processed())
	for i, o := range rep.Outcomes {
		assert.Equal(t, i, o.Row)
		assert.Equal(t, model.OutcomeSent, o.Kind)
	}
	// the message that was out when cancellation hit keeps its ids
	assert.Equal(t, "<m2@mail.example.com>", table.Rows[1].Value(model.ColumnRfcMessageID))
	assert.Empty(t, table.Rows[2].Value(model.ColumnThreadID))
	assert.Equal(t, 4, rep.Table.Len())
	assert.Contains(t, rep.Summary(), "(cancelled after 2 rows)")

	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Done)
	assert.Equal(t, 4, progress[1].Total)
	assert.Equal(t, rep.RunID, progress[0].RunID)
}

func TestRunUsesGivenRunID(t *testing.T) {
	t.Parallel()

	rep := newTestRunner(newFakeTransport()).Run(context.Background(), contacts("a@x.com"), tmpl, Options{RunID: "run-1"})
	assert.Equal(t, "run-1", rep.RunID)
}

func TestRunPacesAfterSuccessOnly(t *testing.T) {
	t.Parallel()

	p := &countingPacer{}
	ft := newFakeTransport()
	ft.failFor["c@x.com"] = errQuota
	newTestRunner(ft, WithPacer(p)).Run(context.Background(), contacts("a@x.com", "bad", "c@x.com", "d@x.com"), tmpl,
		Options{Delay: 30 * time.Second})

	assert.Equal(t, 2, p.calls)
	assert.Equal(t, 30*time.Second, p.last)
}

type countingPacer struct {
	calls int
	last  time.Duration
}

func (p *countingPacer) Next(d time.Duration) time.Duration {
	p.calls++
	p.last = d
	return 0
}

func TestJitterPacerBounds(t *testing.T) {
	t.Parallel()

	p := NewJitterPacer(rand.NewPCG(1, 2))
	base := 30 * time.Second
	lo, hi := time.Duration(float64(base)*0.9), time.Duration(float64(base)*1.1)
	for range 1000 {
		d := p.Next(base)
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
	assert.Zero(t, p.Next(0))
	assert.Zero(t, NoDelay{}.Next(base))
}
