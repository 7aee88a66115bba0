package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gmerge/internal/model"
	"gmerge/internal/render"
	"gmerge/internal/util"
)

// ReasonInvalidEmail is the skip reason for rows without a usable address.
const ReasonInvalidEmail = "invalid email"

// metadataTimeout bounds the Message-ID lookup when the run was cancelled
// while pacing; the message is already out and its ids are still wanted.
const metadataTimeout = 10 * time.Second

// Options configure a single run.
type Options struct {
	Mode  model.Mode
	Delay time.Duration
	Label string
	// Sender, when set, is written as the From header. Otherwise the
	// provider uses the authenticated account.
	Sender string
	// RunID overrides the generated run identifier.
	RunID string
}

// Runner drives the dispatch loop over a Transport.
type Runner struct {
	transport Transport
	pacer     Pacer
	logger    *slog.Logger
	progress  func(model.Progress)
	now       func() time.Time
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

func WithPacer(p Pacer) RunnerOption {
	return func(r *Runner) { r.pacer = p }
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithProgress registers fn to be called after every recorded outcome.
// fn runs on the dispatch goroutine and must not block.
func WithProgress(fn func(model.Progress)) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(t Transport, opts ...RunnerOption) *Runner {
	r := &Runner{
		transport: t,
		pacer:     NewJitterPacer(nil),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run processes every row of table in order and returns the report. The
// table is annotated in place with ThreadId and RfcMessageId for every sent
// row. Run never fails: per-row problems become Skipped or Failed outcomes,
// and a cancelled ctx stops the loop between rows with a partial report.
func (r *Runner) Run(ctx context.Context, table *model.Table, tmpl model.Template, opts Options) *model.Report {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	mode := opts.Mode
	if mode == "" {
		mode = model.ModeNew
	}
	log := r.logger.With("run_id", runID, "mode", string(mode))

	table.EnsureColumn(model.ColumnThreadID)
	table.EnsureColumn(model.ColumnRfcMessageID)

	b := NewReportBuilder(runID, mode, opts.Label, table, r.now())

	var labelID string
	if mode == model.ModeNew && opts.Label != "" {
		id, err := ResolveLabel(ctx, r.transport, opts.Label)
		if err != nil {
			log.Warn("label unavailable, continuing without it", "label", opts.Label, "error", err)
		}
		labelID = id
	}

	log.Info("run started", "rows", table.Len(), "label", opts.Label, "delay", opts.Delay)

	for i, row := range table.Rows {
		if ctx.Err() != nil {
			b.Cancel()
			break
		}
		o, stop := r.processRow(ctx, log, table, i, row, tmpl, opts, mode, labelID)
		r.record(log, b, runID, table.Len(), o)
		if stop {
			b.Cancel()
			break
		}
	}

	rep := b.Build(r.now())
	log.Info("run finished", "summary", rep.Summary(), "cancelled", rep.Cancelled)
	return rep
}

// processRow handles a single row. stop reports that ctx was cancelled
// while pacing after a successful submission.
func (r *Runner) processRow(
	ctx context.Context,
	log *slog.Logger,
	table *model.Table,
	i int,
	row *model.Row,
	tmpl model.Template,
	opts Options,
	mode model.Mode,
	labelID string,
) (model.Outcome, bool) {
	raw := table.Email(row)
	to, ok := util.ExtractEmail(raw)
	if !ok {
		return model.SkippedOutcome(i, raw, ReasonInvalidEmail), false
	}

	msg := buildMessage(to, tmpl, row, opts.Sender, mode)

	var (
		sent model.SentMessage
		err  error
	)
	if mode == model.ModeDraft {
		sent, err = r.transport.CreateDraft(ctx, msg)
	} else {
		sent, err = r.transport.Send(ctx, msg)
	}
	if err != nil {
		return model.FailedOutcome(i, to, err), false
	}

	if mode == model.ModeNew && labelID != "" {
		if err := r.transport.ModifyLabels(ctx, sent.ID, []string{labelID}); err != nil {
			log.Warn("apply label failed", "row", i, "email", to, "error", err)
		}
	}

	stop := false
	if err := sleep(ctx, r.pacer.Next(opts.Delay)); err != nil {
		stop = true
	}

	fetchCtx := ctx
	if stop {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), metadataTimeout)
		defer cancel()
	}
	var headers []model.Header
	if sent.ID != "" {
		headers, err = r.transport.GetMessageHeaders(fetchCtx, sent.ID, HeaderMessageID)
		if err != nil {
			log.Warn("fetch message metadata failed", "row", i, "email", to, "gmail_id", sent.ID, "error", err)
			headers = nil
		}
	}
	c := Correlate(sent.ThreadID, headers)
	row.Set(model.ColumnThreadID, c.ThreadID)
	row.Set(model.ColumnRfcMessageID, c.MessageID)

	return model.SentOutcome(i, to, sent.ID, c), stop
}

func (r *Runner) record(log *slog.Logger, b *ReportBuilder, runID string, total int, o model.Outcome) {
	b.Add(o)

	attrs := []any{"row", o.Row, "email", o.Identifier, "outcome", string(o.Kind)}
	switch o.Kind {
	case model.OutcomeSent:
		log.Info("row processed", append(attrs, "gmail_id", o.GmailID, "thread_id", o.Correlation.ThreadID)...)
	case model.OutcomeSkipped:
		log.Info("row processed", append(attrs, "reason", o.Reason)...)
	case model.OutcomeFailed:
		log.Error("row processed", append(attrs, "error", o.Error)...)
	}

	if r.progress != nil {
		r.progress(model.Progress{RunID: runID, Done: b.Processed(), Total: total, Outcome: o})
	}
}

func buildMessage(to string, tmpl model.Template, row *model.Row, sender string, mode model.Mode) *model.Message {
	subject, html, text := render.Compose(tmpl, row)
	msg := &model.Message{
		From:     sender,
		To:       to,
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	}
	if mode == model.ModeFollowUp {
		msg.ThreadID = row.Value(model.ColumnThreadID)
		if id := row.Value(model.ColumnRfcMessageID); id != "" {
			msg.InReplyTo = id
			msg.References = id
		}
	}
	return msg
}
