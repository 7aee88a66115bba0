package gmail

import (
	"context"
	"fmt"

	gmailv1 "google.golang.org/api/gmail/v1"

	"gmerge/internal/model"
)

const user = "me"

// Transport submits merge messages through the Gmail API.
type Transport struct {
	svc *gmailv1.Service
}

func NewTransport(svc *gmailv1.Service) *Transport {
	return &Transport{svc: svc}
}

func (t *Transport) Send(ctx context.Context, msg *model.Message) (model.SentMessage, error) {
	gm, err := apiMessage(msg)
	if err != nil {
		return model.SentMessage{}, err
	}
	res, err := t.svc.Users.Messages.Send(user, gm).Context(ctx).Do()
	if err != nil {
		return model.SentMessage{}, fmt.Errorf("send message to %s: %w", msg.To, err)
	}
	return model.SentMessage{ID: res.Id, ThreadID: res.ThreadId}, nil
}

func (t *Transport) CreateDraft(ctx context.Context, msg *model.Message) (model.SentMessage, error) {
	gm, err := apiMessage(msg)
	if err != nil {
		return model.SentMessage{}, err
	}
	d, err := t.svc.Users.Drafts.Create(user, &gmailv1.Draft{Message: gm}).Context(ctx).Do()
	if err != nil {
		return model.SentMessage{}, fmt.Errorf("create draft for %s: %w", msg.To, err)
	}
	if d.Message == nil {
		return model.SentMessage{}, nil
	}
	return model.SentMessage{ID: d.Message.Id, ThreadID: d.Message.ThreadId}, nil
}

func (t *Transport) GetMessageHeaders(ctx context.Context, id string, names ...string) ([]model.Header, error) {
	call := t.svc.Users.Messages.Get(user, id).Format("metadata")
	if len(names) > 0 {
		call = call.MetadataHeaders(names...)
	}
	m, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	if m.Payload == nil {
		return nil, nil
	}
	out := make([]model.Header, 0, len(m.Payload.Headers))
	for _, h := range m.Payload.Headers {
		out = append(out, model.Header{Name: h.Name, Value: h.Value})
	}
	return out, nil
}

func (t *Transport) ModifyLabels(ctx context.Context, id string, addLabelIDs []string) error {
	req := &gmailv1.ModifyMessageRequest{AddLabelIds: addLabelIDs}
	if _, err := t.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("label message %s: %w", id, err)
	}
	return nil
}

func (t *Transport) ListLabels(ctx context.Context) ([]model.Label, error) {
	res, err := t.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	out := make([]model.Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		out = append(out, model.Label{ID: l.Id, Name: l.Name})
	}
	return out, nil
}

func (t *Transport) CreateLabel(ctx context.Context, name string) (model.Label, error) {
	l, err := t.svc.Users.Labels.Create(user, &gmailv1.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return model.Label{}, fmt.Errorf("create label %q: %w", name, err)
	}
	return model.Label{ID: l.Id, Name: l.Name}, nil
}

// Profile returns the address of the signed-in account.
func (t *Transport) Profile(ctx context.Context) (string, error) {
	p, err := t.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return p.EmailAddress, nil
}

func apiMessage(msg *model.Message) (*gmailv1.Message, error) {
	raw, err := ComposeRaw(msg)
	if err != nil {
		return nil, fmt.Errorf("compose message to %s: %w", msg.To, err)
	}
	return &gmailv1.Message{Raw: raw, ThreadId: msg.ThreadID}, nil
}
