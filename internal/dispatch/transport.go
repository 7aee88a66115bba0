// Package dispatch runs a mail merge: one rendered message per recipient
// row, submitted strictly in order with a jittered pause between sends.
package dispatch

import (
	"context"

	"gmerge/internal/model"
)

// LabelAPI is the subset of the transport used for label resolution.
type LabelAPI interface {
	ListLabels(ctx context.Context) ([]model.Label, error)
	CreateLabel(ctx context.Context, name string) (model.Label, error)
}

// Transport submits messages to the mailbox provider.
type Transport interface {
	LabelAPI

	Send(ctx context.Context, msg *model.Message) (model.SentMessage, error)
	CreateDraft(ctx context.Context, msg *model.Message) (model.SentMessage, error)
	// GetMessageHeaders returns the named headers of a stored message.
	GetMessageHeaders(ctx context.Context, id string, names ...string) ([]model.Header, error)
	ModifyLabels(ctx context.Context, id string, addLabelIDs []string) error
}
