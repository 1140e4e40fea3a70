package engine

// Messenger is the outbound side of the surrounding bot runtime. All methods
// are best effort: failures are returned (or swallowed, for DisplayName) so
// the caller can warn the initiating user, never propagated as a fatal
// error. Announce returns the posted message ID so callers can edit it
// later.
type Messenger interface {
	// Announce posts to the chat, and to the given forum thread when
	// thread is non-zero. what and opts follow the bot runtime's Send
	// conventions (text, reply markup, parse mode).
	Announce(scope, thread int64, what any, opts ...any) (int, error)

	// Notify sends a private message to a user. Delivery can fail when
	// the user never opened a private chat with the bot; the caller
	// reports such failures to the host and proceeds.
	Notify(userID int64, what any, opts ...any) error

	// DisplayName resolves a user's display name for rendering, falling
	// back to a numeric form when the lookup fails.
	DisplayName(scope, userID int64) string
}

// Authorizer decides whether an actor may manage a session. The engine's
// own baseline is "actor is the session owner"; anything beyond that
// (community admin status) is delegated to the implementation.
// Requirements: 6.4
type Authorizer interface {
	CanManage(actorID, ownerID int64) bool
}
