// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-gamenight-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrMatchNotFound = errors.New("match not found")
)

// MatchRepository handles finished-match persistence.
// Requirements: 8.1, 8.2 - Match history and leaderboards
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a new MatchRepository instance.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// Insert stores a finished match and returns the stored record.
func (r *MatchRepository) Insert(ctx context.Context, rec *model.MatchRecord) (*model.MatchRecord, error) {
	const query = `
		INSERT INTO match_records (chat_id, game, owner_id, players, winner_ids, outcome, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, chat_id, game, owner_id, players, winner_ids, outcome, started_at, ended_at
	`

	var out model.MatchRecord
	err := r.pool.QueryRow(ctx, query,
		rec.ChatID, rec.Game, rec.OwnerID, rec.Players,
		rec.WinnerIDs, rec.Outcome, rec.StartedAt, rec.EndedAt,
	).Scan(
		&out.ID, &out.ChatID, &out.Game, &out.OwnerID, &out.Players,
		&out.WinnerIDs, &out.Outcome, &out.StartedAt, &out.EndedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert match record: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a single match record.
func (r *MatchRepository) GetByID(ctx context.Context, id int64) (*model.MatchRecord, error) {
	const query = `
		SELECT id, chat_id, game, owner_id, players, winner_ids, outcome, started_at, ended_at
		FROM match_records
		WHERE id = $1
	`

	var out model.MatchRecord
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&out.ID, &out.ChatID, &out.Game, &out.OwnerID, &out.Players,
		&out.WinnerIDs, &out.Outcome, &out.StartedAt, &out.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match record: %w", err)
	}
	return &out, nil
}

// RecentByChat returns a chat's most recent finished matches, newest first.
func (r *MatchRepository) RecentByChat(ctx context.Context, chatID int64, limit int) ([]*model.MatchRecord, error) {
	const query = `
		SELECT id, chat_id, game, owner_id, players, winner_ids, outcome, started_at, ended_at
		FROM match_records
		WHERE chat_id = $1
		ORDER BY ended_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent matches: %w", err)
	}
	defer rows.Close()

	var records []*model.MatchRecord
	for rows.Next() {
		var rec model.MatchRecord
		if err := rows.Scan(
			&rec.ID, &rec.ChatID, &rec.Game, &rec.OwnerID, &rec.Players,
			&rec.WinnerIDs, &rec.Outcome, &rec.StartedAt, &rec.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// TopWinners returns the chat's leaderboard: users ranked by completed-match
// wins.
// Requirements: 8.2
func (r *MatchRepository) TopWinners(ctx context.Context, chatID int64, limit int) ([]model.LeaderboardEntry, error) {
	const query = `
		SELECT w.user_id,
		       COUNT(*) AS wins,
		       (SELECT COUNT(*) FROM match_records m2
		        WHERE m2.chat_id = $1 AND w.user_id = ANY(m2.winner_ids)) AS matches
		FROM match_records m, UNNEST(m.winner_ids) AS w(user_id)
		WHERE m.chat_id = $1 AND m.outcome = 'completed'
		GROUP BY w.user_id
		ORDER BY wins DESC, w.user_id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Wins, &e.Matches); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
