package table

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"

	"gmerge/internal/model"
)

func TestReadCSV(t *testing.T) {
	t.Parallel()

	in := "\ufeffName,EMAIL,Company\nAnn,ann@x.com,Acme\n,,\nBob,bob@x.com\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "EMAIL", "Company", "ThreadId", "RfcMessageId"}, tbl.Columns)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "ann@x.com", tbl.Email(tbl.Rows[0]))
	assert.Equal(t, "", tbl.Email(tbl.Rows[1]))
	assert.Equal(t, "bob@x.com", tbl.Email(tbl.Rows[2]))
	assert.Equal(t, "", tbl.Rows[2].Value("Company"))
	assert.Equal(t, "", tbl.Rows[2].Value(model.ColumnThreadID))
}

func TestReadCSVKeepsRowCount(t *testing.T) {
	t.Parallel()

	tbl, err := ReadCSV(strings.NewReader("Name,Email\nAnn,ann@x.com\n,\nBob,bob@x.com\n\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
}

func TestReadCSVDuplicateHeaders(t *testing.T) {
	t.Parallel()

	tbl, err := ReadCSV(strings.NewReader("Name,Name,Email\nA,B,a@x.com\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "Name,Name.1,Email,ThreadId,RfcMessageId\nA,B,a@x.com,,\n", buf.String())
}

func TestReadCSVNoEmailColumn(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader("Name,Phone\nAnn,1\n"))
	require.ErrorIs(t, err, model.ErrNoEmailColumn)

	_, err = ReadCSV(strings.NewReader(""))
	require.Error(t, err)
}

func TestWriteCSVKeepsColumnOrder(t *testing.T) {
	t.Parallel()

	tbl, err := ReadCSV(strings.NewReader("Email,ThreadId,Name\na@x.com,t1,Ann\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "Email,ThreadId,Name,RfcMessageId\na@x.com,t1,Ann,\n", buf.String())
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Name", "Email"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Ann", "ann@x.com"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Bob", "bob@x.com"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	tbl, err := Read("contacts.xlsx", buf)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "Bob", tbl.Rows[1].Value("Name"))
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	f, err := DetectFormat("list.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = DetectFormat("/tmp/list.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = DetectFormat("list.pdf")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestAdvisory(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("Email\n")
	for i := range AdvisoryLimit {
		fmt.Fprintf(&sb, "u%d@x.com\n", i)
	}
	tbl, err := ReadCSV(strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Empty(t, Advisory(tbl))

	tbl.Rows = append(tbl.Rows, model.NewRow())
	assert.Contains(t, Advisory(tbl), "81 recipients")
}

func TestSpreadsheetID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1AbC-_9", SpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-_9/edit#gid=0"))
	assert.Equal(t, "plainid", SpreadsheetID("plainid"))
}

func TestSheetReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/values/Contacts"):
			io.WriteString(w, `{"range":"Contacts!A1:B3","values":[["Name","Email"],["Ann","ann@x.com"],["Bob"]]}`)
		case strings.HasSuffix(r.URL.Path, "/spreadsheets/sheet1"):
			io.WriteString(w, `{"sheets":[{"properties":{"title":"Contacts"}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":404,"message":"not found"}}`)
		}
	}))
	defer srv.Close()

	sr, err := NewSheetReader(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	tbl, err := sr.Read(context.Background(), "https://docs.google.com/spreadsheets/d/sheet1/edit", "")
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "ann@x.com", tbl.Email(tbl.Rows[0]))
	assert.Equal(t, "", tbl.Email(tbl.Rows[1]))
}
