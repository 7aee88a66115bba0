// Package web serves the browser UI: Google sign-in, recipient upload,
// template preview, run control and backup download.
package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"gmerge/internal/backup"
	"gmerge/internal/merge"
	"gmerge/internal/session"
	"gmerge/internal/store"
	"gmerge/internal/table"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	cookieName    = "gmerge_session"
	maxUploadSize = 10 << 20
)

// Connection is an authorized link to the user's Google account.
type Connection struct {
	Transport merge.Transport
	Sheets    *table.SheetReader
}

// Connector opens a Connection for a session's token. Refreshed tokens are
// handed to saver.
type Connector func(ctx context.Context, tok *oauth2.Token, saver session.TokenSaver) (*Connection, error)

// RunHistory is the part of the store the UI reads.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Config wires a Server.
type Config struct {
	OAuth         *oauth2.Config
	Sessions      session.Store
	Merge         *merge.Service
	Sink          backup.Sink
	History       RunHistory // optional
	Connect       Connector
	DefaultLabel  string
	DefaultDelay  int
	SecureCookies bool
	Logger        *slog.Logger
}

// Server is the browser UI.
type Server struct {
	cfg    Config
	log    *slog.Logger
	pages  *template.Template
	runs   *runRegistry
	router chi.Router
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pages, err := template.New("").Funcs(template.FuncMap{
		"fmtTime": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		pages: pages,
		runs:  newRunRegistry(),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)

		r.Get("/", s.handleIndex)
		r.Get("/auth/login", s.handleLogin)
		r.Get("/auth/callback", s.handleCallback)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/recipients", s.handleUpload)
			r.Post("/recipients/sheet", s.handleSheet)
			r.Post("/preview", s.handlePreview)
			r.Post("/runs", s.handleStartRun)
			r.Post("/runs/cancel", s.handleCancelRun)
			r.Get("/runs/status", s.handleRunStatus)
			r.Get("/backup/latest", s.handleDownloadBackup)
		})
	})
	return r
}

// Shutdown cancels every run started by this server and waits for them to
// finish their post-run persistence.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.runs.shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// runRegistry tracks runs executing in this process.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*activeRun // by session id
	wg   sync.WaitGroup
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*activeRun)}
}

func (rr *runRegistry) get(sessionID string) *activeRun {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.runs[sessionID]
}

func (rr *runRegistry) put(sessionID string, ar *activeRun) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.runs[sessionID] = ar
}

func (rr *runRegistry) shutdown(ctx context.Context) error {
	rr.mu.Lock()
	for _, ar := range rr.runs {
		ar.cancel()
	}
	rr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		rr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
