package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Store persists conversation state keyed by session id.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	// Create stores a fresh greeting-step state. It fails with ErrExists for a known id.
	Create(ctx context.Context, id string) (*State, error)
	// Update inserts or replaces the state.
	Update(ctx context.Context, state *State) error
	Delete(ctx context.Context, id string) error
	// DeleteIdle removes sessions not updated since before and returns how many were removed.
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// MemoryStore keeps sessions in process memory. It hands out copies only.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*State), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Create(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return nil, ErrExists
	}
	s := newState(id, m.now())
	m.sessions[id] = s
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, state *State) error {
	if state == nil || state.ID == "" {
		return errors.New("session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[state.ID] = state.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteIdle(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error { return nil }
