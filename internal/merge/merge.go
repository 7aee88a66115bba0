// Package merge ties a dispatch run to its side effects: backup, history
// and the e-mailed copy of the backup.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gmerge/internal/backup"
	"gmerge/internal/dispatch"
	"gmerge/internal/model"
)

// persistTimeout bounds post-run work, which runs even when the run itself
// was cancelled.
const persistTimeout = 30 * time.Second

// Transport is what a merge needs from the mailbox provider.
type Transport interface {
	dispatch.Transport
	backup.Mailer
}

// History records finished runs.
type History interface {
	SaveRun(ctx context.Context, rep *model.Report) error
	SetBackup(ctx context.Context, runID, name, location string) error
}

type Service struct {
	sink      backup.Sink
	history   History
	emailCopy bool
	pacer     dispatch.Pacer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithHistory enables run history. Without it runs are not recorded.
func WithHistory(h History) Option { return func(s *Service) { s.history = h } }

// WithEmailCopy mails every backup to the signed-in account.
func WithEmailCopy(on bool) Option { return func(s *Service) { s.emailCopy = on } }

func WithPacer(p dispatch.Pacer) Option { return func(s *Service) { s.pacer = p } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(sink backup.Sink, opts ...Option) *Service {
	s := &Service{
		sink:   sink,
		pacer:  dispatch.NewJitterPacer(nil),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Request is one merge.
type Request struct {
	Transport Transport
	Table     *model.Table
	Template  model.Template
	Options   dispatch.Options
	Progress  func(model.Progress)
}

// Result carries the report and, when it could be written, the backup.
// Warnings lists non-fatal post-run problems for the user.
type Result struct {
	Report   *model.Report
	Backup   *backup.Backup
	Warnings []string
}

// Execute runs the merge and then persists its outcome. Persistence runs
// even if ctx was cancelled mid-run, so a partial run still leaves a
// backup with the thread ids of the messages that went out.
func (s *Service) Execute(ctx context.Context, req Request) *Result {
	opts := []dispatch.RunnerOption{dispatch.WithPacer(s.pacer), dispatch.WithLogger(s.logger), dispatch.WithClock(s.now)}
	if req.Progress != nil {
		opts = append(opts, dispatch.WithProgress(req.Progress))
	}
	rep := dispatch.NewRunner(req.Transport, opts...).Run(ctx, req.Table, req.Template, req.Options)
	res := &Result{Report: rep}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	log := s.logger.With("run_id", rep.RunID)

	if s.history != nil {
		if err := s.history.SaveRun(pctx, rep); err != nil {
			log.Error("save run history failed", "error", err)
			res.warn("run history not saved: %v", err)
		}
	}

	b, err := backup.Save(pctx, s.sink, req.Options.Label, rep.Table, s.now())
	if err != nil {
		log.Error("backup failed", "error", err)
		res.warn("backup not saved: %v", err)
		return res
	}
	res.Backup = b
	log.Info("backup saved", "name", b.Name, "location", b.Location)

	if s.history != nil {
		if err := s.history.SetBackup(pctx, rep.RunID, b.Name, b.Location); err != nil {
			log.Warn("record backup failed", "error", err)
		}
	}
	if s.emailCopy {
		if err := backup.EmailCopy(pctx, req.Transport, b); err != nil {
			log.Warn("email backup copy failed", "error", err)
			res.warn("could not email backup: %v", err)
		} else {
			log.Info("backup emailed to account")
		}
	}
	return res
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
