// Package game defines the chat-game interfaces and registry for the
// gamenight bot.
// Requirements: 10.1 - Define a common interface for all session games
// Requirements: 10.3 - Adding a game only requires implementing the interface
package game

// Descriptor is the common surface of a session-based chat game. Games hold
// their own session stores; the registry only needs enough to list them and
// to administrate their sessions.
// Requirements: 10.1, 10.3
type Descriptor interface {
	// Name returns the game's display name (e.g. "Mafia").
	Name() string

	// Command returns the command that starts this game (e.g. "mafia").
	Command() string

	// Description returns a brief description for the /games listing.
	Description() string

	// Active reports whether the chat has a live session of this game.
	Active(chatID int64) bool

	// ForceEnd ends the chat's session of this game, returning true when
	// one was ended. Used by admin cleanup.
	ForceEnd(chatID int64) bool
}
