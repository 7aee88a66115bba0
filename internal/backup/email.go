package backup

import (
	"context"
	"fmt"

	"gmerge/internal/model"
)

// Mailer sends a message from the signed-in account and knows its address.
type Mailer interface {
	Send(ctx context.Context, msg *model.Message) (model.SentMessage, error)
	Profile(ctx context.Context) (string, error)
}

// EmailCopy mails b as a CSV attachment to the signed-in account.
func EmailCopy(ctx context.Context, m Mailer, b *Backup) error {
	to, err := m.Profile(ctx)
	if err != nil {
		return err
	}
	text := "Attached is the backup CSV file for your recent mail merge run."
	_, err = m.Send(ctx, &model.Message{
		To:       to,
		Subject:  "Mail Merge Backup CSV: " + b.Name,
		TextBody: text,
		HTMLBody: "<p>" + text + "</p>",
		Attachments: []model.Attachment{{
			Filename:    b.Name,
			ContentType: "text/csv",
			Content:     b.Data,
		}},
	})
	if err != nil {
		return fmt.Errorf("email backup %s: %w", b.Name, err)
	}
	return nil
}
