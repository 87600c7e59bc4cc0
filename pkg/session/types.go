// Package session keeps per-conversation state between requests: the Pilot's
// message history and the session's variable store. Sessions live in memory
// only; an idle janitor reclaims abandoned ones.
package session

import (
	"sync"
	"time"

	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// Session is one conversation's server-side state. All accessors are safe
// for concurrent use; ID and CreatedAt never change after creation.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	history      []llm.Message
	vars         *variables.Store
	lastActivity time.Time
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		vars:         variables.NewStore(),
		lastActivity: now,
	}
}

// History returns a copy of the stored Pilot history.
func (s *Session) History() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// SetHistory replaces the stored Pilot history with a copy of history.
func (s *Session) SetHistory(history []llm.Message) {
	copied := make([]llm.Message, len(history))
	copy(copied, history)
	s.mu.Lock()
	s.history = copied
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Vars returns the session's variable store. The store itself is safe for
// concurrent use.
func (s *Session) Vars() *variables.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vars
}

// Reset discards the stored history and replaces the variable store with a
// fresh one. Used when a request starts a new conversation under an existing
// session id.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.vars = variables.NewStore()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Touch records activity so the idle janitor keeps the session alive.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns when the session was last touched.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}
