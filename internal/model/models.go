// Package model defines the data models for the gamenight bot.
package model

import "time"

// MatchRecord is the persisted summary of one finished game session.
// Live sessions are never persisted; a record is written best-effort once a
// session ends.
// Requirements: 8.1 - match_records table
type MatchRecord struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	Game      string    `db:"game"`
	OwnerID   int64     `db:"owner_id"`
	Players   int       `db:"players"`
	WinnerIDs []int64   `db:"winner_ids"`
	Outcome   string    `db:"outcome"`
	StartedAt time.Time `db:"started_at"`
	EndedAt   time.Time `db:"ended_at"`
}

// LeaderboardEntry is one row of the per-chat winners leaderboard.
type LeaderboardEntry struct {
	UserID  int64 `db:"user_id"`
	Wins    int64 `db:"wins"`
	Matches int64 `db:"matches"`
}

// Match outcomes.
const (
	OutcomeCompleted = "completed" // a win condition was reached
	OutcomeCancelled = "cancelled" // the owner ended the session early
	OutcomeForced    = "forced"    // an admin force-ended the session
	OutcomeAbandoned = "abandoned" // no eligible actor remained
)
