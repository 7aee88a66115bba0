package gmail

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmerge/internal/model"
)

func readMessage(t *testing.T, raw []byte) (mail.Header, map[string]string, []string) {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	bodies := map[string]string{}
	var attachments []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			bodies[ct] = string(b)
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			attachments = append(attachments, name+":"+string(b))
		}
	}
	return mr.Header, bodies, attachments
}

func TestComposeMIMEFollowUp(t *testing.T) {
	t.Parallel()

	msg := &model.Message{
		To:         "Ann <ann@example.com>",
		From:       "me@example.com",
		Subject:    "Hello Ann ✓",
		HTMLBody:   "<html><body>Hi <b>Ann</b></body></html>",
		TextBody:   "Hi Ann",
		InReplyTo:  "<orig@mail.example.com>",
		References: "<orig@mail.example.com>",
	}
	raw, err := composeMIME(msg, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	h, bodies, attachments := readMessage(t, raw)
	subject, err := h.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Hello Ann ✓", subject)

	to, err := h.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "ann@example.com", to[0].Address)

	assert.Equal(t, "<orig@mail.example.com>", h.Get("In-Reply-To"))
	assert.Equal(t, "<orig@mail.example.com>", h.Get("References"))
	assert.Equal(t, "Hi Ann", bodies["text/plain"])
	assert.Equal(t, msg.HTMLBody, bodies["text/html"])
	assert.Empty(t, attachments)
}

func TestComposeMIMEWithAttachment(t *testing.T) {
	t.Parallel()

	msg := &model.Message{
		To:       "me@example.com",
		Subject:  "Backup",
		HTMLBody: "<p>attached</p>",
		Attachments: []model.Attachment{{
			Filename:    "Updated_x_20250101_000000.csv",
			ContentType: "text/csv",
			Content:     []byte("Email\na@b.com\n"),
		}},
	}
	raw, err := composeMIME(msg, time.Now())
	require.NoError(t, err)

	h, bodies, attachments := readMessage(t, raw)
	assert.Empty(t, h.Get("In-Reply-To"))
	assert.Equal(t, "<p>attached</p>", bodies["text/html"])
	assert.Equal(t, []string{"Updated_x_20250101_000000.csv:Email\na@b.com\n"}, attachments)
}

func TestComposeRawIsBase64URL(t *testing.T) {
	t.Parallel()

	raw, err := ComposeRaw(&model.Message{To: "a@b.com", Subject: "s", HTMLBody: strings.Repeat("x?>", 50)})
	require.NoError(t, err)
	assert.NotContains(t, raw, "+")
	assert.NotContains(t, raw, "/")

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "Subject: s")
}
