package model

import (
	"fmt"
	"strings"
)

// Column names the dispatch loop reads and writes.
const (
	ColumnEmail        = "Email"
	ColumnThreadID     = "ThreadId"
	ColumnRfcMessageID = "RfcMessageId"
)

// Row is one contact: field name -> value. Values are kept as strings,
// numbers from spreadsheets arrive already formatted.
type Row struct {
	Fields map[string]string
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{Fields: make(map[string]string)}
}

// Get returns the value of field and whether the row has it.
func (r *Row) Get(field string) (string, bool) {
	if r == nil || r.Fields == nil {
		return "", false
	}
	v, ok := r.Fields[field]
	return v, ok
}

// Value is Get without the presence flag.
func (r *Row) Value(field string) string {
	v, _ := r.Get(field)
	return v
}

func (r *Row) Set(field, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[field] = value
}

// Table is the uploaded recipient list. Rows are annotated in place during a
// run; rows are never added or removed.
type Table struct {
	Columns     []string
	Rows        []*Row
	EmailColumn string // actual header matched for ColumnEmail
}

// NewTable builds a table from a header and raw records. The header must
// contain an Email column (matched case-insensitively). Repeated header
// names get a numeric suffix (Name, Name.1). Short records are padded with
// empty values, extra cells are dropped. Only zero-length records (blank
// lines) are skipped; a record of empty cells is still a row.
func NewTable(header []string, records [][]string) (*Table, error) {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	cols = dedupeColumns(cols)
	t := &Table{Columns: cols}
	for _, c := range cols {
		if strings.EqualFold(c, ColumnEmail) {
			t.EmailColumn = c
			break
		}
	}
	if t.EmailColumn == "" {
		return nil, fmt.Errorf("%w (columns: %s)", ErrNoEmailColumn, strings.Join(cols, ", "))
	}

	t.Rows = make([]*Row, 0, len(records))
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		row := NewRow()
		for i, c := range cols {
			if i < len(rec) {
				row.Set(c, strings.TrimSpace(rec[i]))
			} else {
				row.Set(c, "")
			}
		}
		t.Rows = append(t.Rows, row)
	}
	t.EnsureColumn(ColumnThreadID)
	t.EnsureColumn(ColumnRfcMessageID)
	return t, nil
}

// EnsureColumn appends name to the header when missing and defaults it to
// "" on every row that lacks it.
func (t *Table) EnsureColumn(name string) {
	found := false
	for _, c := range t.Columns {
		if c == name {
			found = true
			break
		}
	}
	if !found {
		t.Columns = append(t.Columns, name)
	}
	for _, r := range t.Rows {
		if _, ok := r.Get(name); !ok {
			r.Set(name, "")
		}
	}
}

func (t *Table) Len() int { return len(t.Rows) }

// Email returns the raw value of the row's Email column.
func (t *Table) Email(r *Row) string {
	return r.Value(t.EmailColumn)
}

// Records returns the header followed by every row in column order.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, r := range t.Rows {
		rec := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			rec[i] = r.Value(c)
		}
		out = append(out, rec)
	}
	return out
}

// dedupeColumns renames repeated names so every column keeps its own
// values: the second "Name" becomes "Name.1", the third "Name.2", skipping
// suffixes already taken by another column.
func dedupeColumns(cols []string) []string {
	taken := make(map[string]bool, len(cols))
	for _, c := range cols {
		taken[c] = true
	}
	seen := make(map[string]int, len(cols))
	out := make([]string, len(cols))
	for i, c := range cols {
		n := seen[c]
		seen[c] = n + 1
		if n == 0 {
			out[i] = c
			continue
		}
		name := fmt.Sprintf("%s.%d", c, n)
		for taken[name] {
			n++
			name = fmt.Sprintf("%s.%d", c, n)
		}
		seen[c] = n + 1
		taken[name] = true
		out[i] = name
	}
	return out
}
