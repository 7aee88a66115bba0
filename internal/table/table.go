// Package table loads recipient lists from CSV, XLSX or Google Sheets.
package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gmerge/internal/model"
)

var ErrUnsupportedFormat = errors.New("unsupported recipient file format")

// AdvisoryLimit is the list size above which a warning is shown; larger
// batches are more likely to trip Gmail's sending limits.
const AdvisoryLimit = 80

// Format identifies an input file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from a file name's extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Base(name))
}

// Read parses r in the format implied by name.
func Read(name string, r io.Reader) (*model.Table, error) {
	f, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatXLSX:
		return ReadXLSX(r)
	default:
		return ReadCSV(r)
	}
}

// Open reads the recipient file at path.
func Open(path string) (*model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipients: %w", err)
	}
	defer f.Close()
	return Read(path, f)
}

// Advisory returns a warning for oversized lists, or "".
func Advisory(t *model.Table) string {
	if t == nil || t.Len() <= AdvisoryLimit {
		return ""
	}
	return fmt.Sprintf("%d recipients loaded; batches of %d or fewer are recommended to stay within Gmail sending limits", t.Len(), AdvisoryLimit)
}

func fromRecords(records [][]string) (*model.Table, error) {
	if len(records) == 0 {
		return nil, errors.New("recipient file is empty")
	}
	return model.NewTable(records[0], records[1:])
}
