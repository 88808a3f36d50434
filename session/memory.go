package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*Session{},
		now:      time.Now,
	}
}

func (m *MemoryStore) FindOrCreate(ctx context.Context, id string) (*Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok && id != "" {
		return s.Clone(), false, nil
	}
	return New(uuid.NewString(), m.now()), true, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := s.Clone()
	stored.UpdatedAt = m.now()
	if _, ok := m.sessions[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.sessions[s.ID] = stored
	s.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Session
	for _, id := range m.order {
		if s := m.sessions[id]; latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: store is empty", ErrNotFound)
	}
	return latest.Clone(), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
