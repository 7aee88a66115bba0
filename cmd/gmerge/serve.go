package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"gmerge/internal/gmail"
	"gmerge/internal/session"
	"gmerge/internal/table"
	"gmerge/internal/web"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Web.Listen = listen
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := a.logger

	settings := a.oauthSettings()
	if settings.RedirectURL == "" {
		settings.RedirectURL = "http://" + a.cfg.Web.Listen + "/auth/callback"
	}
	oc, err := gmail.OAuthConfig(settings)
	if err != nil {
		return err
	}

	var sessions session.Store
	if addr := a.cfg.Web.RedisAddr; addr != "" {
		rdb, err := session.OpenRedis(ctx, addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, a.cfg.Web.SessionTTL)
		log.Info("sessions in redis", "addr", addr)
	} else {
		sessions = session.NewMemoryStore(a.cfg.Web.SessionTTL)
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

	ui, err := web.NewServer(web.Config{
		OAuth:         oc,
		Sessions:      sessions,
		Merge:         a.mergeService(sink, hist, log),
		Sink:          sink,
		History:       hist,
		Connect:       connector(oc),
		DefaultLabel:  a.cfg.Merge.Label,
		DefaultDelay:  a.cfg.Merge.DelaySeconds,
		SecureCookies: a.cfg.Web.SecureCookies,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Web.Listen,
		Handler:           ui,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving browser UI", "addr", "http://"+a.cfg.Web.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		return ui.Shutdown(sctx)
	})
	return g.Wait()
}

// connector opens Gmail and Sheets clients for a session token. Runs
// outlive the request that started them, so the client ignores request
// cancellation.
func connector(oc *oauth2.Config) web.Connector {
	return func(ctx context.Context, tok *oauth2.Token, saver session.TokenSaver) (*web.Connection, error) {
		ctx = context.WithoutCancel(ctx)
		client, err := gmail.NewClient(ctx, oc, tok, saver)
		if err != nil {
			return nil, err
		}
		sheets, err := table.NewSheetReader(ctx, client.HTTP)
		if err != nil {
			return nil, err
		}
		return &web.Connection{Transport: gmail.NewTransport(client.Service), Sheets: sheets}, nil
	}
}
