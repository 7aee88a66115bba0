package table

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"gmerge/internal/model"
)

var spreadsheetURL = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SpreadsheetID accepts a bare id or a docs.google.com URL.
func SpreadsheetID(ref string) string {
	if m := spreadsheetURL.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ref
}

// SheetReader loads recipient lists from Google Sheets.
type SheetReader struct {
	svc *sheets.Service
}

// NewSheetReader builds a reader on an already authorized HTTP client.
func NewSheetReader(ctx context.Context, hc *http.Client, opts ...option.ClientOption) (*SheetReader, error) {
	svc, err := sheets.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(hc)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetReader{svc: svc}, nil
}

// Read fetches readRange (A1 notation, e.g. "Contacts!A1:F") from the
// spreadsheet. An empty range reads the first sheet.
func (s *SheetReader) Read(ctx context.Context, ref, readRange string) (*model.Table, error) {
	id := SpreadsheetID(ref)
	if readRange == "" {
		ss, err := s.svc.Spreadsheets.Get(id).Fields("sheets.properties.title").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get spreadsheet %s: %w", id, err)
		}
		if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
			return nil, fmt.Errorf("spreadsheet %s has no sheets", id)
		}
		readRange = ss.Sheets[0].Properties.Title
	}
	vr, err := s.svc.Spreadsheets.Values.Get(id, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", readRange, err)
	}
	records := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		rec := make([]string, len(row))
		for j, cell := range row {
			rec[j] = fmt.Sprint(cell)
		}
		records[i] = rec
	}
	return fromRecords(records)
}
