package gmail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	loopbackState   = "gmerge-login"
	loopbackTimeout = 120 * time.Second
)

// LoginOptions wire the interactive sign-in to the terminal.
type LoginOptions struct {
	// Open is called with the consent URL, usually OpenBrowser.
	Open func(url string) error
	In   io.Reader
	Out  io.Writer
	// Timeout for the loopback redirect before falling back to paste.
	Timeout time.Duration
}

// Login runs the installed-app flow: a loopback server on 127.0.0.1
// captures the redirect; if it cannot start or nothing arrives in time the
// user pastes the code or the redirect URL instead.
func Login(ctx context.Context, cfg *oauth2.Config, opts LoginOptions) (*oauth2.Token, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = loopbackTimeout
	}
	local := *cfg

	tok, err := loginLoopback(ctx, &local, opts)
	if err == nil {
		return tok, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	fmt.Fprintf(opts.Out, "Loopback sign-in unavailable (%v); falling back to manual paste.\n", err)

	local.RedirectURL = cfg.RedirectURL
	return loginPaste(ctx, &local, opts)
}

var errLoopbackTimeout = errors.New("timed out waiting for redirect")

func loginLoopback(ctx context.Context, cfg *oauth2.Config, opts LoginOptions) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on loopback: %w", err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)

	codes := make(chan string, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != loopbackState {
				http.Error(w, "Unexpected state parameter", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case codes <- code:
			default:
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	authURL := AuthCodeURL(cfg, loopbackState)
	fmt.Fprintln(opts.Out, "A browser window will open. If it does not, copy this URL:")
	fmt.Fprintln(opts.Out, authURL)
	if opts.Open != nil {
		_ = opts.Open(authURL)
	}
	fmt.Fprintf(opts.Out, "Waiting for redirect on %s ...\n", cfg.RedirectURL)

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errLoopbackTimeout
	case code := <-codes:
		return exchange(ctx, cfg, code, opts.Out)
	}
}

func loginPaste(ctx context.Context, cfg *oauth2.Config, opts LoginOptions) (*oauth2.Token, error) {
	fmt.Fprintln(opts.Out, "Open this URL in your browser to authorize gmerge:")
	fmt.Fprintln(opts.Out, AuthCodeURL(cfg, loopbackState))
	fmt.Fprintln(opts.Out)
	fmt.Fprintln(opts.Out, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(opts.Out, "> ")

	sc := bufio.NewScanner(opts.In)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := ParseAuthInput(sc.Text())
	if err != nil {
		return nil, err
	}
	return exchange(ctx, cfg, code, opts.Out)
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string, out io.Writer) (*oauth2.Token, error) {
	fmt.Fprintln(out, "Exchanging code for token...")
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	fmt.Fprintln(out, "Authentication successful.")
	return tok, nil
}
