package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gmerge/internal/backup"
	"gmerge/internal/config"
	"gmerge/internal/dispatch"
	"gmerge/internal/gmail"
	"gmerge/internal/merge"
	"gmerge/internal/model"
	"gmerge/internal/render"
	"gmerge/internal/table"
	"gmerge/internal/tui"
)

type sendFlags struct {
	recipients string
	sheet      string
	sheetRange string
	subject    string
	body       string
	bodyFile   string
	format     string
	mode       string
	delay      int
	label      string
	preview    string
	noTUI      bool
}

func newSendCmd(a *app) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run a mail merge over a CSV, XLSX or Google Sheets recipient list",
		Example: `  gmerge send --recipients contacts.csv --subject "Hello {Name}" --body-file body.txt
  gmerge send --sheet https://docs.google.com/spreadsheets/d/ID --mode followup --body "Just checking in"
  gmerge send --recipients contacts.csv --subject "Hi" --body "Hi {Name}" --preview ann@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, a, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.recipients, "recipients", "", "recipient table (.csv or .xlsx)")
	fl.StringVar(&f.sheet, "sheet", "", "Google Sheets URL or id to read recipients from")
	fl.StringVar(&f.sheetRange, "range", "", "A1 range within the sheet (default: first sheet)")
	fl.StringVar(&f.subject, "subject", "", "subject template, {Column} placeholders allowed")
	fl.StringVar(&f.body, "body", "", "body template")
	fl.StringVar(&f.bodyFile, "body-file", "", "read the body template from a file")
	fl.StringVar(&f.format, "format", render.FormatMarkup, "body format: markup or markdown")
	fl.StringVar(&f.mode, "mode", "", "new, followup or draft (default from config)")
	fl.IntVar(&f.delay, "delay", 0, "seconds between messages, 30 to 300 (default from config)")
	fl.StringVar(&f.label, "label", "", "label applied to new messages (default from config)")
	fl.StringVar(&f.preview, "preview", "", "print the message for this recipient address and exit")
	fl.BoolVar(&f.noTUI, "no-tui", false, "print progress lines instead of the interactive view")
	cmd.MarkFlagsMutuallyExclusive("recipients", "sheet")
	cmd.MarkFlagsOneRequired("recipients", "sheet")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}

func (f *sendFlags) template() (model.Template, error) {
	body := f.body
	if f.bodyFile != "" {
		b, err := os.ReadFile(f.bodyFile)
		if err != nil {
			return model.Template{}, fmt.Errorf("read body: %w", err)
		}
		body = string(b)
	}
	if strings.TrimSpace(body) == "" {
		return model.Template{}, errors.New("a body is required: use --body or --body-file")
	}
	return model.Template{Subject: f.subject, Body: body, Format: f.format}, nil
}

func runSend(cmd *cobra.Command, a *app, f *sendFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	tmpl, err := f.template()
	if err != nil {
		return err
	}
	modeName := f.mode
	if modeName == "" {
		modeName = a.cfg.Merge.Mode
	}
	mode, err := model.ParseMode(modeName)
	if err != nil {
		return err
	}
	if mode != model.ModeFollowUp && strings.TrimSpace(tmpl.Subject) == "" {
		return errors.New("a subject is required for new messages and drafts")
	}

	var client *gmail.Client
	var tbl *model.Table
	if f.sheet != "" {
		if client, err = a.connect(ctx); err != nil {
			return err
		}
		sr, err := table.NewSheetReader(ctx, client.HTTP)
		if err != nil {
			return err
		}
		if tbl, err = sr.Read(ctx, f.sheet, f.sheetRange); err != nil {
			return err
		}
	} else if tbl, err = table.Open(f.recipients); err != nil {
		return err
	}
	if adv := table.Advisory(tbl); adv != "" {
		fmt.Fprintln(out, "Note: "+adv+".")
	}

	if f.preview != "" {
		return printPreview(out, tbl, tmpl, f.preview)
	}

	if client == nil {
		if client, err = a.connect(ctx); err != nil {
			return err
		}
	}

	delay := a.cfg.Merge.DelaySeconds
	if f.delay != 0 {
		delay = config.ClampDelay(f.delay)
	}
	label := a.cfg.Merge.Label
	if cmd.Flags().Changed("label") {
		label = f.label
	}

	req := merge.Request{
		Transport: gmail.NewTransport(client.Service),
		Table:     tbl,
		Template:  tmpl,
		Options: dispatch.Options{
			Mode:   mode,
			Delay:  time.Duration(delay) * time.Second,
			Label:  label,
			Sender: a.cfg.Merge.Sender,
			RunID:  uuid.NewString(),
		},
	}

	sink, err := a.openSink()
	if err != nil {
		return err
	}
	hist, err := a.openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	var res *merge.Result
	if f.noTUI {
		res = runPlain(ctx, out, a.mergeService(sink, hist, a.logger), req)
	} else {
		if res, err = runTUI(ctx, a, sink, hist, req); err != nil {
			return err
		}
		if res == nil {
			fmt.Fprintln(out, "Nothing sent.")
			return nil
		}
	}
	printResult(out, res)
	return nil
}

func runPlain(ctx context.Context, out io.Writer, svc *merge.Service, req merge.Request) *merge.Result {
	req.Progress = func(p model.Progress) {
		o := p.Outcome
		line := fmt.Sprintf("[%d/%d] %s %s", p.Done, p.Total, o.Identifier, o.Kind)
		switch o.Kind {
		case model.OutcomeSkipped:
			line += ": " + o.Reason
		case model.OutcomeFailed:
			line += ": " + o.Error
		}
		fmt.Fprintln(out, line)
	}
	return svc.Execute(ctx, req)
}

// runTUI logs to a file while the alt screen owns the terminal.
func runTUI(ctx context.Context, a *app, sink backup.Sink, hist merge.History, req merge.Request) (*merge.Result, error) {
	lf, err := os.OpenFile(a.cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer lf.Close()
	logger := setupLogger(lf, a.cfg.Logging.Level, a.cfg.Logging.Format)

	appModel := tui.NewAppModel(ctx, a.mergeService(sink, hist, logger), req)
	p := tea.NewProgram(&appModel, tea.WithAltScreen(), tea.WithContext(ctx))
	appModel.SetProgram(p)
	finalModel, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("terminal ui: %w", err)
	}
	if m, ok := finalModel.(*tui.AppModel); ok {
		if m.Err != nil {
			return nil, m.Err
		}
		return m.Result(), nil
	}
	return appModel.Result(), nil
}

func printPreview(out io.Writer, tbl *model.Table, tmpl model.Template, email string) error {
	idx := merge.FindRow(tbl, email)
	if idx < 0 {
		return fmt.Errorf("no row with Email %q", email)
	}
	p, err := merge.PreviewRow(tbl, tmpl, idx)
	if err != nil {
		return err
	}
	to := p.To
	if !p.Valid {
		to = fmt.Sprintf("%q (will be skipped)", p.RawEmail)
	}
	fmt.Fprintf(out, "To: %s\nSubject: %s\n\n%s\n\n--- HTML ---\n%s\n", to, p.Subject, p.Text, p.HTML)
	return nil
}

func printResult(out io.Writer, res *merge.Result) {
	rep := res.Report
	fmt.Fprintln(out, rep.Summary())
	for _, f := range rep.Failures {
		fmt.Fprintf(out, "  failed %s: %s\n", f.Identifier, f.Error)
	}
	if len(rep.SkippedIDs) > 0 {
		fmt.Fprintf(out, "  skipped: %s\n", strings.Join(rep.SkippedIDs, ", "))
	}
	if res.Backup != nil {
		fmt.Fprintf(out, "Backup: %s\n", res.Backup.Location)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
}
