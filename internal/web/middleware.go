package web

import (
	"context"
	"errors"
	"net/http"

	"gmerge/internal/session"
)

type ctxKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKey{}).(*session.Session)
	return s
}

// withSession loads the session named by the cookie, creating one when the
// cookie is missing or stale.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *session.Session
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			sess, err = s.cfg.Sessions.Get(r.Context(), c.Value)
			if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
				s.log.Error("load session failed", "error", err)
				http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if sess == nil {
			var err error
			sess, err = s.cfg.Sessions.Create(r.Context())
			if err != nil {
				s.log.Error("create session failed", "error", err)
				http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     cookieName,
				Value:    sess.ID,
				Path:     "/",
				Expires:  sess.ExpiresAt,
				HttpOnly: true,
				Secure:   s.cfg.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFrom(r.Context()).IsAuthenticated() {
			http.Error(w, "sign in with Google first", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
