package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"gmerge/internal/model"
)

// ComposeRaw encodes msg as an RFC 5322 message in the base64url form the
// Gmail API expects in Message.Raw.
func ComposeRaw(msg *model.Message) (string, error) {
	b, err := composeMIME(msg, time.Now())
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func composeMIME(msg *model.Message, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)

	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		to = &mail.Address{Address: msg.To}
	}
	h.SetAddressList("To", []*mail.Address{to})
	if msg.From != "" {
		if from, err := mail.ParseAddress(msg.From); err == nil {
			h.SetAddressList("From", []*mail.Address{from})
		}
	}
	if msg.InReplyTo != "" {
		h.Set("In-Reply-To", msg.InReplyTo)
	}
	if msg.References != "" {
		h.Set("References", msg.References)
	}

	var buf bytes.Buffer
	if len(msg.Attachments) == 0 {
		if err := writeAlternative(&buf, h, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mime writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline part: %w", err)
	}
	if err := writeBodies(iw, msg); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}
	for _, a := range msg.Attachments {
		var ah mail.AttachmentHeader
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ah.Set("Content-Type", ct)
		ah.SetFilename(a.Filename)
		ah.Set("Content-Transfer-Encoding", "base64")
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("create attachment %s: %w", a.Filename, err)
		}
		if _, err := w.Write(a.Content); err != nil {
			w.Close()
			return nil, fmt.Errorf("write attachment %s: %w", a.Filename, err)
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAlternative(w io.Writer, h mail.Header, msg *model.Message) error {
	iw, err := mail.CreateInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("create mime writer: %w", err)
	}
	if err := writeBodies(iw, msg); err != nil {
		return err
	}
	return iw.Close()
}

func writeBodies(iw *mail.InlineWriter, msg *model.Message) error {
	if msg.TextBody != "" {
		if err := writeInline(iw, "text/plain", msg.TextBody); err != nil {
			return err
		}
	}
	return writeInline(iw, "text/html", msg.HTMLBody)
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		pw.Close()
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return pw.Close()
}
