// Package session holds per-user state for the browser UI: the OAuth
// token, the uploaded recipient table, the last backup and the active run.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"gmerge/internal/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRunInProgress   = errors.New("a run is already in progress for this session")
)

// BackupRef points at the last backup written for the session.
type BackupRef struct {
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one signed-in browser user.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	OAuthState string        `json:"oauth_state,omitempty"`
	Token      *oauth2.Token `json:"token,omitempty"`
	Account    string        `json:"account,omitempty"`

	Table      *model.Table `json:"table,omitempty"`
	TableName  string       `json:"table_name,omitempty"`
	LastBackup *BackupRef   `json:"last_backup,omitempty"`

	ActiveRun string        `json:"active_run,omitempty"`
	LastRun   *model.Report `json:"last_run,omitempty"`
}

// New returns a session with a fresh random id.
func New(now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Session) IsAuthenticated() bool {
	return s.Token != nil && (s.Token.AccessToken != "" || s.Token.RefreshToken != "")
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// BeginRun marks runID as the session's active run.
func (s *Session) BeginRun(runID string) error {
	if s.ActiveRun != "" {
		return ErrRunInProgress
	}
	s.ActiveRun = runID
	return nil
}

// EndRun clears the active run if it is runID.
func (s *Session) EndRun(runID string) {
	if s.ActiveRun == runID {
		s.ActiveRun = ""
	}
}

// Logout drops everything tied to the Google account.
func (s *Session) Logout() {
	s.Token = nil
	s.Account = ""
	s.OAuthState = ""
	s.Table = nil
	s.TableName = ""
	s.LastRun = nil
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	// Get returns ErrSessionNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*Session, error)
	// Update loads the session, applies fn and saves it atomically. If fn
	// returns an error nothing is saved and the error is returned.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// TokenSaver writes refreshed OAuth tokens back into a session.
type TokenSaver struct {
	Store Store
	ID    string
}

func (t TokenSaver) SaveToken(tok *oauth2.Token) error {
	_, err := t.Store.Update(context.Background(), t.ID, func(s *Session) error {
		s.Token = tok
		return nil
	})
	return err
}
