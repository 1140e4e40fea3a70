// Package handler provides Telegram bot command handlers.
// Requirements: 8.2, 10.2 - Game listing and match history commands
package handler

import (
	"context"
	"fmt"
	"sort"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-gamenight-bot/internal/game"
	"telegram-gamenight-bot/internal/service"
)

// GamesHandler handles game discovery and match history commands.
type GamesHandler struct {
	registry *game.Registry
	history  *service.HistoryService
}

// NewGamesHandler creates a new GamesHandler.
func NewGamesHandler(registry *game.Registry, history *service.HistoryService) *GamesHandler {
	return &GamesHandler{
		registry: registry,
		history:  history,
	}
}

// HandleGames handles the /games command.
// Requirements: 10.2
func (h *GamesHandler) HandleGames(c tele.Context) error {
	if c.Chat() == nil {
		return nil
	}

	games := h.registry.List()
	sort.Slice(games, func(i, j int) bool { return games[i].Command() < games[j].Command() })

	text := "🎲 Game night menu:\n"
	for _, g := range games {
		status := ""
		if g.Active(c.Chat().ID) {
			status = " — 🟢 running now"
		}
		text += fmt.Sprintf("\n/%s — %s: %s%s", g.Command(), g.Name(), g.Description(), status)
	}
	return c.Reply(text)
}

// HandleHistory handles the /history command.
// Requirements: 8.2
func (h *GamesHandler) HandleHistory(c tele.Context) error {
	if c.Chat() == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := h.history.Recent(ctx, c.Chat().ID, 10)
	if err != nil {
		return c.Reply("❌ Could not load the match history, please try again.")
	}
	if len(records) == 0 {
		return c.Reply("📜 No finished games here yet. Start one with /games!")
	}

	text := "📜 Recent games:"
	for _, r := range records {
		text += fmt.Sprintf("\n• %s — %d players, %s (%s)",
			r.Game, r.Players, r.Outcome, r.EndedAt.Format("Jan 2 15:04"))
	}
	return c.Reply(text)
}

// HandleLeaderboard handles the /leaderboard command.
// Requirements: 8.2
func (h *GamesHandler) HandleLeaderboard(c tele.Context) error {
	if c.Chat() == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := h.history.TopWinners(ctx, c.Chat().ID, 10)
	if err != nil {
		return c.Reply("❌ Could not load the leaderboard, please try again.")
	}
	if len(entries) == 0 {
		return c.Reply("🏆 Nobody has won anything here yet. Be the first!")
	}

	medals := []string{"🥇", "🥈", "🥉"}
	text := "🏆 Hall of fame:"
	for i, e := range entries {
		medal := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			medal = medals[i]
		}
		text += fmt.Sprintf("\n%s %d win(s) — user %d", medal, e.Wins, e.UserID)
	}
	return c.Reply(text)
}
