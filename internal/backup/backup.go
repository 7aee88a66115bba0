// Package backup writes the annotated recipient table after a run so that
// thread ids survive for follow-ups.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"gmerge/internal/model"
	"gmerge/internal/table"
	"gmerge/internal/util"
)

var ErrNotFound = errors.New("backup not found")

const timestampLayout = "20060102_150405"

// FileName returns Updated_<label>_<YYYYMMDD_HHMMSS>.csv with the label
// reduced to [A-Za-z0-9_-].
func FileName(label string, at time.Time) string {
	return fmt.Sprintf("Updated_%s_%s.csv", util.SanitizeLabel(label), at.Format(timestampLayout))
}

// Sink stores backup files.
type Sink interface {
	// Put stores data under name and returns where it went.
	Put(ctx context.Context, name string, data []byte) (string, error)
	// Get returns a stored file or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
}

// Backup describes a stored table.
type Backup struct {
	Name      string
	Location  string
	Data      []byte
	CreatedAt time.Time
}

// Save serializes t as CSV and stores it in sink.
func Save(ctx context.Context, sink Sink, label string, t *model.Table, at time.Time) (*Backup, error) {
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	name := FileName(label, at)
	loc, err := sink.Put(ctx, name, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("store backup %s: %w", name, err)
	}
	return &Backup{Name: name, Location: loc, Data: buf.Bytes(), CreatedAt: at}, nil
}
