package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gmerge/internal/backup"
	"gmerge/internal/config"
	"gmerge/internal/credential"
	"gmerge/internal/gmail"
	"gmerge/internal/merge"
	"gmerge/internal/model"
	"gmerge/internal/store"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	configDir  string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "gmerge",
		Short:         "Mail merge through your Gmail account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configDir, a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			a.cfg = cfg
			a.logger = setupLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "directory for config, credentials and history (default ~/.config/gmerge)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newSendCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
	)
	return cmd
}

// setupLogger installs and returns the process logger.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// oauthSettings prefers the client secret file, but an inline id/secret
// pair wins when the default file was never created.
func (a *app) oauthSettings() gmail.OAuthSettings {
	g := a.cfg.Gmail
	s := gmail.OAuthSettings{
		ClientSecretFile: g.ClientSecretFile,
		ClientID:         g.ClientID,
		ClientSecret:     g.ClientSecret,
		RedirectURL:      g.RedirectURL,
	}
	if s.ClientID != "" && s.ClientSecret != "" {
		if _, err := os.Stat(s.ClientSecretFile); errors.Is(err, fs.ErrNotExist) {
			s.ClientSecretFile = ""
		}
	}
	return s
}

func (a *app) tokenStore() (*credential.TokenStore, error) {
	ring, err := credential.Open(a.cfg.Dir)
	if err != nil {
		return nil, err
	}
	return credential.NewTokenStore(ring), nil
}

// connect builds a Gmail client from the stored token.
func (a *app) connect(ctx context.Context) (*gmail.Client, error) {
	oc, err := gmail.OAuthConfig(a.oauthSettings())
	if err != nil {
		return nil, err
	}
	ts, err := a.tokenStore()
	if err != nil {
		return nil, err
	}
	tok, err := ts.Token()
	if err != nil {
		if errors.Is(err, model.ErrNotAuthenticated) {
			return nil, fmt.Errorf("%w: run 'gmerge login' first", err)
		}
		return nil, err
	}
	return gmail.NewClient(ctx, oc, tok, ts)
}

func (a *app) openSink() (backup.Sink, error) {
	if !a.cfg.S3Enabled() {
		return backup.NewLocalSink(a.cfg.Backup.Dir), nil
	}
	s3 := a.cfg.Backup.S3
	return backup.NewS3Sink(backup.S3Config{
		Bucket:    s3.Bucket,
		Region:    s3.Region,
		Endpoint:  s3.Endpoint,
		PathStyle: s3.PathStyle,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		Prefix:    s3.Prefix,
	})
}

func (a *app) openHistory() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Store.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return store.NewSQLiteStore(a.cfg.Store.Path)
}

func (a *app) mergeService(sink backup.Sink, hist merge.History, logger *slog.Logger) *merge.Service {
	return merge.NewService(sink,
		merge.WithHistory(hist),
		merge.WithEmailCopy(a.cfg.Backup.EmailCopy),
		merge.WithLogger(logger),
	)
}
