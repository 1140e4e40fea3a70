// Package service provides business logic implementations.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-gamenight-bot/internal/model"
	"telegram-gamenight-bot/internal/repository"
)

// HistoryService records finished matches and serves history queries.
// Recording is best effort: a database failure is logged and swallowed so a
// session can always finish cleanly without its summary.
// Requirements: 8.1, 8.2
type HistoryService struct {
	matches *repository.MatchRepository
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(matches *repository.MatchRepository) *HistoryService {
	return &HistoryService{matches: matches}
}

// Record persists a finished match. Failures are logged, never returned.
func (s *HistoryService) Record(chatID int64, game string, ownerID int64, players int, winners []int64, outcome string, startedAt time.Time) {
	if s == nil || s.matches == nil {
		return
	}
	if winners == nil {
		winners = []int64{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.matches.Insert(ctx, &model.MatchRecord{
		ChatID:    chatID,
		Game:      game,
		OwnerID:   ownerID,
		Players:   players,
		WinnerIDs: winners,
		Outcome:   outcome,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).
			Int64("chat_id", chatID).
			Str("game", game).
			Msg("Failed to record finished match")
		return
	}

	log.Info().
		Int64("chat_id", chatID).
		Str("game", game).
		Str("outcome", outcome).
		Int("players", players).
		Msg("Match recorded")
}

// Recent returns a chat's latest finished matches.
func (s *HistoryService) Recent(ctx context.Context, chatID int64, limit int) ([]*model.MatchRecord, error) {
	if limit <= 0 || limit > 20 {
		limit = 10
	}
	return s.matches.RecentByChat(ctx, chatID, limit)
}

// TopWinners returns a chat's leaderboard.
func (s *HistoryService) TopWinners(ctx context.Context, chatID int64, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 || limit > 20 {
		limit = 10
	}
	return s.matches.TopWinners(ctx, chatID, limit)
}
