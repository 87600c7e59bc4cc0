package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager holds all live sessions, keyed by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Resolve returns the session for id, creating it when id is empty or
// unknown. A request whose inbound history holds at most one message starts
// a new conversation, so an existing session is reset before reuse.
func (m *Manager) Resolve(id string, inboundHistory int) *Session {
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	s, existed := m.sessions[id]
	if !existed {
		s = newSession(id)
		m.sessions[id] = s
	}
	m.mu.Unlock()

	if existed && inboundHistory <= 1 {
		s.Reset()
	}
	s.Touch()
	return s
}

// Get returns the session stored under id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes the session stored under id.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// PruneIdle removes sessions untouched for longer than maxIdle and returns
// how many were dropped.
func (m *Manager) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(m.sessions, id)
			pruned++
		}
	}
	return pruned
}
