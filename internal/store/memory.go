package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time interface assertion.
var _ Store = (*Memory)(nil)

// Memory is an in-process [Store]. All returned records are copies; mutating
// them does not affect stored state.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*User    // by ID
	sessions map[string]*Session // by ID
	attempts map[string][]*Attempt
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
		attempts: make(map[string][]*Attempt),
	}
}

func (m *Memory) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrDuplicate
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) UserByName(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return ErrDuplicate
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *Memory) SessionByID(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) SessionsByUser(_ context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) EndSession(_ context.Context, id string, endedAt time.Time, agg Aggregates, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.EndedAt = endedAt
	s.Aggregates = agg
	s.Summary = summary
	return nil
}

func (m *Memory) AddAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[a.SessionID]; !ok {
		return ErrNotFound
	}
	cp := *a
	cp.Mistakes = append([]string(nil), a.Mistakes...)
	m.attempts[a.SessionID] = append(m.attempts[a.SessionID], &cp)
	return nil
}

func (m *Memory) AttemptsBySession(_ context.Context, sessionID string) ([]*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.attempts[sessionID]
	out := make([]*Attempt, 0, len(stored))
	for _, a := range stored {
		cp := *a
		cp.Mistakes = append([]string(nil), a.Mistakes...)
		out = append(out, &cp)
	}
	return out, nil
}
