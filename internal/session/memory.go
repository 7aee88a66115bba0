package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Sessions are stored encoded so
// callers never share a *Session across requests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context) (*Session, error) {
	s := New(m.now(), m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.put(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.ExpiresAt = m.now().Add(m.ttl)
	if err := m.put(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MemoryStore) get(id string) (*Session, error) {
	b, ok := m.data[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if s.IsExpired(m.now()) {
		delete(m.data, id)
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) put(s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.data[s.ID] = b
	return nil
}
