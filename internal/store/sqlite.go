package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"gmerge/internal/model"
)

// SQLiteStore keeps the history of merge runs in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sqlx.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	label           TEXT NOT NULL DEFAULT '',
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	total           INTEGER NOT NULL DEFAULT 0,
	sent            INTEGER NOT NULL DEFAULT 0,
	skipped         INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	cancelled       INTEGER NOT NULL DEFAULT 0,
	summary         TEXT NOT NULL DEFAULT '',
	backup_name     TEXT NOT NULL DEFAULT '',
	backup_location TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_index  INTEGER NOT NULL,
	identifier TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	gmail_id   TEXT NOT NULL DEFAULT '',
	thread_id  TEXT NOT NULL DEFAULT '',
	message_id TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, row_index)
);

CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Run is one row of the runs table.
type Run struct {
	ID             string `db:"id"`
	Mode           string `db:"mode"`
	Label          string `db:"label"`
	StartedAt      string `db:"started_at"`
	FinishedAt     string `db:"finished_at"`
	Total          int    `db:"total"`
	Sent           int    `db:"sent"`
	Skipped        int    `db:"skipped"`
	Failed         int    `db:"failed"`
	Cancelled      bool   `db:"cancelled"`
	Summary        string `db:"summary"`
	BackupName     string `db:"backup_name"`
	BackupLocation string `db:"backup_location"`
}

// Started parses StartedAt; the zero time on malformed values.
func (r Run) Started() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, r.StartedAt)
	return t
}

type outcomeRow struct {
	RunID      string `db:"run_id"`
	RowIndex   int    `db:"row_index"`
	Identifier string `db:"identifier"`
	Kind       string `db:"kind"`
	GmailID    string `db:"gmail_id"`
	ThreadID   string `db:"thread_id"`
	MessageID  string `db:"message_id"`
	Reason     string `db:"reason"`
	Error      string `db:"error"`
}

// SaveRun records a finished report and all of its outcomes.
func (s *SQLiteStore) SaveRun(ctx context.Context, rep *model.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	run := Run{
		ID:         rep.RunID,
		Mode:       string(rep.Mode),
		Label:      rep.Label,
		StartedAt:  rep.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: rep.FinishedAt.UTC().Format(time.RFC3339Nano),
		Total:      rep.Total,
		Sent:       rep.Sent,
		Skipped:    rep.Skipped(),
		Failed:     rep.Failed(),
		Cancelled:  rep.Cancelled,
		Summary:    rep.Summary(),
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, mode, label, started_at, finished_at, total, sent, skipped, failed, cancelled, summary)
		VALUES (:id, :mode, :label, :started_at, :finished_at, :total, :sent, :skipped, :failed, :cancelled, :summary)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			total       = excluded.total,
			sent        = excluded.sent,
			skipped     = excluded.skipped,
			failed      = excluded.failed,
			cancelled   = excluded.cancelled,
			summary     = excluded.summary
	`, run)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM outcomes WHERE run_id = ?", rep.RunID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}
	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO outcomes (run_id, row_index, identifier, kind, gmail_id, thread_id, message_id, reason, error)
		VALUES (:run_id, :row_index, :identifier, :kind, :gmail_id, :thread_id, :message_id, :reason, :error)
	`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range rep.Outcomes {
		_, err := stmt.ExecContext(ctx, outcomeRow{
			RunID:      rep.RunID,
			RowIndex:   o.Row,
			Identifier: o.Identifier,
			Kind:       string(o.Kind),
			GmailID:    o.GmailID,
			ThreadID:   o.Correlation.ThreadID,
			MessageID:  o.Correlation.MessageID,
			Reason:     o.Reason,
			Error:      o.Error,
		})
		if err != nil {
			return fmt.Errorf("insert outcome %d: %w", o.Row, err)
		}
	}
	return tx.Commit()
}

// SetBackup attaches the stored backup file to a run.
func (s *SQLiteStore) SetBackup(ctx context.Context, runID, name, location string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET backup_name = ?, backup_location = ? WHERE id = ?", name, location, runID)
	if err != nil {
		return fmt.Errorf("set backup: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set backup: run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Outcomes returns a run's outcomes in row order.
func (s *SQLiteStore) Outcomes(ctx context.Context, runID string) ([]model.Outcome, error) {
	var rows []outcomeRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM outcomes WHERE run_id = ? ORDER BY row_index", runID)
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	out := make([]model.Outcome, len(rows))
	for i, r := range rows {
		out[i] = model.Outcome{
			Row:         r.RowIndex,
			Identifier:  r.Identifier,
			Kind:        model.OutcomeKind(r.Kind),
			GmailID:     r.GmailID,
			Correlation: model.Correlation{ThreadID: r.ThreadID, MessageID: r.MessageID},
			Reason:      r.Reason,
			Error:       r.Error,
		}
	}
	return out, nil
}

// LastBackup returns the newest run that has a backup, or nil.
func (s *SQLiteStore) LastBackup(ctx context.Context) (*Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM runs WHERE backup_name != '' ORDER BY started_at DESC, id LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}
	return &r, nil
}
