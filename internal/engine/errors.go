package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Engine-level errors shared by all games.
var (
	// ErrScopeOccupied is returned by TryStart when a session already
	// occupies the chat.
	ErrScopeOccupied = errors.New("a game session is already running in this chat")

	// ErrNoSession is returned when an operation targets a chat with no
	// live session.
	ErrNoSession = errors.New("no active game session in this chat")

	// ErrNotAuthorized is returned when an actor may not manage a session.
	ErrNotAuthorized = errors.New("only the game owner or an admin can do that")
)

// SessionInfo is a read-only summary of a stored session, used to render a
// structured refusal when a chat slot is already occupied.
type SessionInfo struct {
	ID        uuid.UUID
	Game      string
	OwnerID   int64
	StartedAt time.Time
}

// OccupiedError carries the existing session's summary so the caller can
// tell the user what is already running instead of a bare refusal.
// Requirements: 1.1
type OccupiedError struct {
	Existing SessionInfo
}

func (e *OccupiedError) Error() string {
	return fmt.Sprintf("%s (%s, running for %s)",
		ErrScopeOccupied, e.Existing.Game,
		time.Since(e.Existing.StartedAt).Round(time.Second))
}

func (e *OccupiedError) Unwrap() error {
	return ErrScopeOccupied
}
