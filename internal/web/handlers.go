package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gmerge/internal/backup"
	"gmerge/internal/config"
	"gmerge/internal/dispatch"
	"gmerge/internal/merge"
	"gmerge/internal/model"
	"gmerge/internal/render"
	"gmerge/internal/session"
	"gmerge/internal/store"
	"gmerge/internal/table"
)

const (
	defaultSubject = "Hello {Name}"
	defaultBody    = "Dear {Name},\n\nWelcome to our **Mail Merge** demo.\n\nYou can add links like [Visit Google](https://google.com)\nand keep your formatting.\n\nThanks,  \n**Your Company**"
)

type indexPage struct {
	Session  *session.Session
	Notice   string
	Advisory string
	Preview  []string
	Columns  []string
	Rows     int
	Subject  string
	Body     string
	Label    string
	Delay    int
	MinDelay int
	MaxDelay int
	Step     int
	Run      *RunStatus
	History  []store.Run
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	p := indexPage{
		Session:  sess,
		Notice:   r.URL.Query().Get("notice"),
		Subject:  defaultSubject,
		Body:     defaultBody,
		Label:    s.cfg.DefaultLabel,
		Delay:    config.ClampDelay(s.cfg.DefaultDelay),
		MinDelay: config.MinDelaySeconds,
		MaxDelay: config.MaxDelaySeconds,
		Step:     config.DelayStepSeconds,
	}
	if sess.Table != nil {
		p.Columns = sess.Table.Columns
		p.Rows = sess.Table.Len()
		p.Advisory = table.Advisory(sess.Table)
		for _, row := range sess.Table.Rows {
			p.Preview = append(p.Preview, sess.Table.Email(row))
		}
	}
	if ar := s.runs.get(sess.ID); ar != nil {
		st := ar.status()
		p.Run = &st
	}
	if s.cfg.History != nil && sess.IsAuthenticated() {
		runs, err := s.cfg.History.ListRuns(r.Context(), 10)
		if err != nil {
			s.log.Warn("list runs failed", "error", err)
		}
		p.History = runs
	}
	s.render(w, "index.html", p)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "upload too large or malformed", http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer f.Close()

	tbl, err := table.Read(hdr.Filename, f)
	if err != nil {
		s.clientError(w, r, err)
		return
	}
	s.storeTable(w, r, tbl, hdr.Filename)
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.FormValue("sheet"))
	if ref == "" {
		http.Error(w, "missing spreadsheet", http.StatusBadRequest)
		return
	}
	sess := sessionFrom(r.Context())
	conn, err := s.connect(r.Context(), sess)
	if err != nil {
		s.serverError(w, "connect", err)
		return
	}
	tbl, err := conn.Sheets.Read(r.Context(), ref, strings.TrimSpace(r.FormValue("range")))
	if err != nil {
		s.clientError(w, r, err)
		return
	}
	s.storeTable(w, r, tbl, "sheet "+table.SpreadsheetID(ref))
}

func (s *Server) storeTable(w http.ResponseWriter, r *http.Request, tbl *model.Table, name string) {
	sess := sessionFrom(r.Context())
	if _, err := s.cfg.Sessions.Update(r.Context(), sess.ID, func(ss *session.Session) error {
		if ss.ActiveRun != "" {
			return session.ErrRunInProgress
		}
		ss.Table = tbl
		ss.TableName = name
		return nil
	}); err != nil {
		if errors.Is(err, session.ErrRunInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		s.serverError(w, "save table", err)
		return
	}
	notice := fmt.Sprintf("Loaded %d recipients from %s.", tbl.Len(), name)
	if adv := table.Advisory(tbl); adv != "" {
		notice += " " + adv + "."
	}
	s.redirectNotice(w, r, notice)
}

type previewPage struct {
	Preview *merge.Preview
	HTML    template.HTML
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if sess.Table == nil {
		http.Error(w, "upload recipients first", http.StatusBadRequest)
		return
	}
	idx := 0
	if email := r.FormValue("email"); email != "" {
		if idx = merge.FindRow(sess.Table, email); idx < 0 {
			http.Error(w, "no recipient "+email, http.StatusNotFound)
			return
		}
	}
	p, err := merge.PreviewRow(sess.Table, templateFromForm(r), idx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.render(w, "preview.html", previewPage{Preview: p, HTML: sanitizePreview(p.HTML)})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	mode, err := model.ParseMode(r.FormValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	delay := s.cfg.DefaultDelay
	if v := r.FormValue("delay"); v != "" {
		if delay, err = strconv.Atoi(v); err != nil {
			http.Error(w, "delay must be a number of seconds", http.StatusBadRequest)
			return
		}
	}
	delay = config.ClampDelay(delay)
	label := strings.TrimSpace(r.FormValue("label"))
	tmpl := templateFromForm(r)

	runID := uuid.NewString()
	updated, err := s.cfg.Sessions.Update(ctx, sess.ID, func(ss *session.Session) error {
		if ss.Table == nil {
			return errNoTable
		}
		return ss.BeginRun(runID)
	})
	switch {
	case errors.Is(err, session.ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, errNoTable):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.serverError(w, "begin run", err)
		return
	}

	conn, err := s.connect(ctx, updated)
	if err != nil {
		s.endRun(sess.ID, runID, nil)
		s.serverError(w, "connect", err)
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{id: runID, cancel: cancel, startedAt: time.Now()}
	ar.update(model.Progress{RunID: runID, Total: updated.Table.Len()})
	s.runs.put(sess.ID, ar)

	req := merge.Request{
		Transport: conn.Transport,
		Table:     updated.Table,
		Template:  tmpl,
		Options: dispatch.Options{
			Mode:  mode,
			Delay: time.Duration(delay) * time.Second,
			Label: label,
			RunID: runID,
		},
		Progress: ar.update,
	}
	s.log.Info("run starting", "session", sess.ID, "run_id", runID, "mode", string(mode), "rows", updated.Table.Len())

	s.runs.wg.Add(1)
	go func() {
		defer s.runs.wg.Done()
		defer cancel()
		res := s.cfg.Merge.Execute(runCtx, req)
		ar.finish(res)
		s.endRun(sess.ID, runID, res)
	}()

	if wantsJSON(r) {
		s.writeJSON(w, http.StatusAccepted, ar.status())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

var errNoTable = errors.New("upload recipients first")

// endRun releases the session's run guard and keeps the annotated table
// so a follow-up run can reuse its thread ids.
func (s *Server) endRun(sessionID, runID string, res *merge.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.cfg.Sessions.Update(ctx, sessionID, func(ss *session.Session) error {
		ss.EndRun(runID)
		if res == nil {
			return nil
		}
		ss.Table = res.Report.Table
		ss.LastRun = res.Report
		if res.Backup != nil {
			ss.LastBackup = &session.BackupRef{
				Name:      res.Backup.Name,
				Location:  res.Backup.Location,
				RunID:     runID,
				CreatedAt: res.Backup.CreatedAt,
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("release run failed", "session", sessionID, "run_id", runID, "error", err)
	}
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	ar := s.runs.get(sess.ID)
	if ar == nil {
		http.Error(w, "no run in progress", http.StatusNotFound)
		return
	}
	ar.cancel()
	s.log.Info("run cancel requested", "session", sess.ID, "run_id", ar.id)
	if wantsJSON(r) {
		s.writeJSON(w, http.StatusAccepted, ar.status())
		return
	}
	s.redirectNotice(w, r, "Cancelling after the current message.")
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	ar := s.runs.get(sess.ID)
	if ar == nil {
		http.Error(w, "no run", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, ar.status())
}

func (s *Server) handleDownloadBackup(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if sess.LastBackup == nil {
		http.Error(w, "no backup yet", http.StatusNotFound)
		return
	}
	data, err := s.cfg.Sink.Get(r.Context(), sess.LastBackup.Name)
	if errors.Is(err, backup.ErrNotFound) {
		http.Error(w, "backup no longer available", http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, "read backup", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.LastBackup.Name))
	_, _ = w.Write(data)
}

func (s *Server) connect(ctx context.Context, sess *session.Session) (*Connection, error) {
	if !sess.IsAuthenticated() {
		return nil, model.ErrNotAuthenticated
	}
	return s.cfg.Connect(ctx, sess.Token, session.TokenSaver{Store: s.cfg.Sessions, ID: sess.ID})
}

func templateFromForm(r *http.Request) model.Template {
	format := r.FormValue("format")
	if format != render.FormatMarkdown {
		format = render.FormatMarkup
	}
	return model.Template{
		Subject: r.FormValue("subject"),
		Body:    strings.ReplaceAll(r.FormValue("body"), "\r\n", "\n"),
		Format:  format,
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render page failed", "page", name, "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response failed", "error", err)
	}
}

func (s *Server) redirectNotice(w http.ResponseWriter, r *http.Request, notice string) {
	http.Redirect(w, r, "/?notice="+url.QueryEscape(notice), http.StatusSeeOther)
}

func (s *Server) clientError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Info("rejected input", "path", r.URL.Path, "error", err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrNotAuthenticated) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	s.log.Error(op+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
