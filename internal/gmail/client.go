// Package gmail talks to the Gmail API: OAuth sign-in, message submission
// and label management for mail-merge runs.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// Scopes requested at sign-in. Modify covers send, metadata reads and
// label changes; compose covers drafts; the sheets scope lets a run read
// its recipient list straight from a spreadsheet.
var Scopes = []string{
	gmailv1.GmailModifyScope,
	gmailv1.GmailComposeScope,
	gmailv1.GmailLabelsScope,
	sheets.SpreadsheetsReadonlyScope,
}

// OAuthSettings locate the OAuth client. A client secret file takes
// precedence over an inline id/secret pair.
type OAuthSettings struct {
	ClientSecretFile string
	ClientID         string
	ClientSecret     string
	RedirectURL      string
}

// OAuthConfig builds the oauth2 config for the installed or web client.
func OAuthConfig(s OAuthSettings) (*oauth2.Config, error) {
	if s.ClientSecretFile != "" {
		b, err := os.ReadFile(s.ClientSecretFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials at %s: %w", s.ClientSecretFile, err)
		}
		cfg, err := google.ConfigFromJSON(b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse oauth config: %w", err)
		}
		if s.RedirectURL != "" {
			cfg.RedirectURL = s.RedirectURL
		}
		return cfg, nil
	}
	if s.ClientID == "" || s.ClientSecret == "" {
		return nil, errors.New("oauth client is not configured: set a client secret file or client id and secret")
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}, nil
}

// TokenSaver receives tokens after a refresh so they survive restarts.
type TokenSaver interface {
	SaveToken(tok *oauth2.Token) error
}

// Client bundles the authorized HTTP client with the Gmail service built on it.
type Client struct {
	HTTP    *http.Client
	Service *gmailv1.Service
}

// NewClient returns a client that refreshes tok as needed and hands every
// new token to saver. saver may be nil.
func NewClient(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, saver TokenSaver) (*Client, error) {
	if tok == nil {
		return nil, errors.New("nil token")
	}
	src := oauth2.ReuseTokenSource(tok, &savingSource{
		src:   cfg.TokenSource(ctx, tok),
		saver: saver,
		last:  tok.AccessToken,
	})
	hc := oauth2.NewClient(ctx, src)
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{HTTP: hc, Service: svc}, nil
}

// savingSource persists tokens whose access token changed.
type savingSource struct {
	src   oauth2.TokenSource
	saver TokenSaver

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saver != nil && tok.AccessToken != s.last {
		// A failed save only costs a re-login later.
		_ = s.saver.SaveToken(tok)
	}
	s.last = tok.AccessToken
	return tok, nil
}

// AuthCodeURL returns the consent URL. Offline access with forced consent
// makes Google issue a refresh token on every sign-in.
func AuthCodeURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ParseAuthInput accepts either a bare authorization code or the full
// redirect URL pasted from the browser and returns the code.
func ParseAuthInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	if e := u.Query().Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}
