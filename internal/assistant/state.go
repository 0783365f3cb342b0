package assistant

import (
	"sync"

	"github.com/hyperjump/decora/internal/models"
)

// SessionState is what the assistant remembers about a session between messages.
type SessionState struct {
	LastStyle string
	LastType  string
	// LastShown is the most recent list of images shown, used to resolve "number 2".
	LastShown []models.ReplyImage
	// LastShownType is the product type of the last catalog results.
	LastShownType string
	// Shown holds every image URL shown in the session.
	Shown map[string]struct{}
}

func (s SessionState) clone() SessionState {
	out := s
	out.LastShown = append([]models.ReplyImage(nil), s.LastShown...)
	out.Shown = make(map[string]struct{}, len(s.Shown))
	for k := range s.Shown {
		out.Shown[k] = struct{}{}
	}
	return out
}

type sessionEntry struct {
	send  sync.Mutex
	state SessionState
}

// StateStore keeps per-session state in memory and serializes sends per session.
// It is safe for concurrent use.
type StateStore struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{entries: make(map[string]*sessionEntry)}
}

func (s *StateStore) entry(sessionID string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		e = &sessionEntry{state: SessionState{Shown: make(map[string]struct{})}}
		s.entries[sessionID] = e
	}
	return e
}

// Lock blocks until no other send for sessionID is in progress and returns the unlock
// function.
func (s *StateStore) Lock(sessionID string) func() {
	e := s.entry(sessionID)
	e.send.Lock()
	return e.send.Unlock
}

// Get returns a copy of the session's state.
func (s *StateStore) Get(sessionID string) SessionState {
	e := s.entry(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.state.clone()
}

// Update applies fn to the session's state.
func (s *StateStore) Update(sessionID string, fn func(*SessionState)) {
	e := s.entry(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&e.state)
}

// Drop forgets the session.
func (s *StateStore) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
}

// Len returns the number of sessions with state.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
