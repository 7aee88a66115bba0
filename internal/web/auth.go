package web

import (
	"net/http"

	"github.com/google/uuid"

	"gmerge/internal/gmail"
	"gmerge/internal/session"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	state := uuid.NewString()
	if _, err := s.cfg.Sessions.Update(r.Context(), sess.ID, func(ss *session.Session) error {
		ss.OAuthState = state
		return nil
	}); err != nil {
		s.serverError(w, "save oauth state", err)
		return
	}
	http.Redirect(w, r, gmail.AuthCodeURL(s.cfg.OAuth, state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		s.redirectNotice(w, r, "Google sign-in was not completed: "+e)
		return
	}
	if sess.OAuthState == "" || q.Get("state") != sess.OAuthState {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	tok, err := s.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		s.log.Warn("token exchange failed", "error", err)
		s.redirectNotice(w, r, "Google sign-in failed, please try again.")
		return
	}

	saver := session.TokenSaver{Store: s.cfg.Sessions, ID: sess.ID}
	account := ""
	if conn, err := s.cfg.Connect(ctx, tok, saver); err == nil {
		if addr, err := conn.Transport.Profile(ctx); err == nil {
			account = addr
		} else {
			s.log.Warn("read profile failed", "error", err)
		}
	} else {
		s.log.Warn("connect after sign-in failed", "error", err)
	}

	if _, err := s.cfg.Sessions.Update(ctx, sess.ID, func(ss *session.Session) error {
		ss.Token = tok
		ss.Account = account
		ss.OAuthState = ""
		return nil
	}); err != nil {
		s.serverError(w, "save token", err)
		return
	}
	s.log.Info("signed in", "session", sess.ID, "account", account)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if ar := s.runs.get(sess.ID); ar != nil {
		ar.cancel()
	}
	if _, err := s.cfg.Sessions.Update(r.Context(), sess.ID, func(ss *session.Session) error {
		ss.Logout()
		return nil
	}); err != nil {
		s.serverError(w, "logout", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
