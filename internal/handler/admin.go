// Package handler provides Telegram bot command handlers.
// Requirements: 6.4, 6.5 - Admin functionality
package handler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-gamenight-bot/internal/game"
)

// AdminHandler handles admin-related commands.
type AdminHandler struct {
	registry *game.Registry
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(registry *game.Registry) *AdminHandler {
	return &AdminHandler{
		registry: registry,
	}
}

// HandleEndGame handles the /endgame command: force-ends every live game
// session in the chat. The admin gate runs in middleware.
// Requirements: 6.4, 6.5
func (h *AdminHandler) HandleEndGame(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}
	chatID := c.Chat().ID

	ended := h.registry.ForceEndAll(chatID)
	if len(ended) == 0 {
		return c.Reply("✅ Nothing is running in this chat.")
	}

	// Log admin operation (Requirements: 6.5)
	log.Info().
		Int64("admin_id", sender.ID).
		Int64("chat_id", chatID).
		Strs("games", ended).
		Str("operation", "endgame").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("🛑 Force-ended: %s", strings.Join(ended, ", ")))
}
