package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one running game instance: engine-owned identity and timers
// plus a game-specific state payload.
//
// A session is reachable from its Store under exactly one chat ID at a time.
// Once Stop removes it, it must never be mutated again: any code that held a
// reference across a blocking call must re-fetch by chat ID and check for
// nil before touching state.
type Session[P any] struct {
	ID        uuid.UUID
	Scope     int64 // chat ID the session is registered under
	Thread    int64 // forum topic the game is bound to; 0 = whole chat
	OwnerID   int64 // user who started the session
	Game      string
	StartedAt time.Time
	Timers    *TimerBag
	State     P
}

// Info returns the session's summary for refusals and listings.
func (s *Session[P]) Info() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Game:      s.Game,
		OwnerID:   s.OwnerID,
		StartedAt: s.StartedAt,
	}
}

// Store is a keyed registry holding at most one live session per chat.
// It is the single point of truth for session liveness: handlers and timer
// callbacks fetch the current session immediately before acting and never
// cache it across a blocking call.
// Requirements: 1.1
type Store[P any] struct {
	mu       sync.Mutex
	game     string
	sessions map[int64]*Session[P]
}

// NewStore creates an empty store for the named game. One store is
// constructed per game module at startup.
func NewStore[P any](game string) *Store[P] {
	return &Store[P]{
		game:     game,
		sessions: make(map[int64]*Session[P]),
	}
}

// TryStart registers a new session for the chat. It fails with an
// *OccupiedError when a session already holds the slot, leaving the existing
// session untouched.
func (st *Store[P]) TryStart(scope, thread, owner int64, state P) (*Session[P], error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.sessions[scope]; ok {
		return nil, &OccupiedError{Existing: existing.Info()}
	}

	s := &Session[P]{
		ID:        uuid.New(),
		Scope:     scope,
		Thread:    thread,
		OwnerID:   owner,
		Game:      st.game,
		StartedAt: time.Now(),
		Timers:    NewTimerBag(),
		State:     state,
	}
	st.sessions[scope] = s
	return s, nil
}

// Get returns the live session for the chat, or nil.
func (st *Store[P]) Get(scope int64) *Session[P] {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[scope]
}

// Stop removes the chat's session after draining its timer bag, and returns
// the removed session so the caller can render a final summary. Calling Stop
// on a chat with no session is a no-op returning nil, which makes a double
// stop safe.
// Requirements: 1.1, 1.2
func (st *Store[P]) Stop(scope int64) *Session[P] {
	st.mu.Lock()
	s, ok := st.sessions[scope]
	if ok {
		delete(st.sessions, scope)
	}
	st.mu.Unlock()

	if !ok {
		return nil
	}
	s.Timers.StopAll()
	return s
}

// SameThread reports whether a command from the given thread may address the
// chat's session: true when the session has no thread binding or the binding
// matches. A chat with no session reports false.
func (st *Store[P]) SameThread(scope, thread int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[scope]
	if !ok {
		return false
	}
	return s.Thread == 0 || s.Thread == thread
}

// Active reports whether the chat has a live session.
func (st *Store[P]) Active(scope int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[scope]
	return ok
}

// Each calls fn for every live session. fn must not call back into the store.
func (st *Store[P]) Each(fn func(*Session[P])) {
	st.mu.Lock()
	sessions := make([]*Session[P], 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.Unlock()

	for _, s := range sessions {
		fn(s)
	}
}

// Len returns the number of live sessions.
func (st *Store[P]) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
