package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gmerge/internal/model"
)

// fakeTransport records every call and fails for configured recipients.
type fakeTransport struct {
	mu sync.Mutex

	labels      []model.Label
	failFor     map[string]error // keyed by recipient address
	headersErr  error
	listErr     error
	modifyErr   error
	onSend      func(msg *model.Message)
	nextID      int
	sent        []*model.Message
	drafts      []*model.Message
	modified    map[string][]string
	createCalls int
	headerCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failFor:  make(map[string]error),
		modified: make(map[string][]string),
	}
}

func (f *fakeTransport) ListLabels(ctx context.Context) ([]model.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Label(nil), f.labels...), nil
}

func (f *fakeTransport) CreateLabel(ctx context.Context, name string) (model.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	l := model.Label{ID: fmt.Sprintf("Label_%d", len(f.labels)+1), Name: name}
	f.labels = append(f.labels, l)
	return l, nil
}

func (f *fakeTransport) submit(msg *model.Message) (model.SentMessage, error) {
	if err, ok := f.failFor[msg.To]; ok {
		return model.SentMessage{}, err
	}
	f.nextID++
	thread := msg.ThreadID
	if thread == "" {
		thread = fmt.Sprintf("t%d", f.nextID)
	}
	return model.SentMessage{ID: fmt.Sprintf("m%d", f.nextID), ThreadID: thread}, nil
}

func (f *fakeTransport) Send(ctx context.Context, msg *model.Message) (model.SentMessage, error) {
	f.mu.Lock()
	s, err := f.submit(msg)
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return s, err
}

func (f *fakeTransport) CreateDraft(ctx context.Context, msg *model.Message) (model.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.submit(msg)
	if err == nil {
		f.drafts = append(f.drafts, msg)
	}
	return s, err
}

func (f *fakeTransport) GetMessageHeaders(ctx context.Context, id string, names ...string) ([]model.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headerCalls++
	if f.headersErr != nil {
		return nil, f.headersErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []model.Header{
		{Name: "Subject", Value: "x"},
		{Name: "Message-Id", Value: "<" + id + "@mail.example.com>"},
	}, nil
}

func (f *fakeTransport) ModifyLabels(ctx context.Context, id string, add []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.modified[id] = append(f.modified[id], add...)
	return nil
}

var errQuota = errors.New("quota exceeded")

func contacts(emails ...string) *model.Table {
	records := make([][]string, len(emails))
	for i, e := range emails {
		name := "nobody"
		if at := strings.IndexByte(e, '@'); at > 0 {
			name = e[:at]
		}
		records[i] = []string{name, e}
	}
	t, err := model.NewTable([]string{"Name", "Email"}, records)
	if err != nil {
		panic(err)
	}
	return t
}
