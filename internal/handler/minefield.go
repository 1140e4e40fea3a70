// Package handler provides Telegram bot command handlers.
// Requirements: 5.1, 5.3 - Minefield commands and callbacks
package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-gamenight-bot/internal/config"
	"telegram-gamenight-bot/internal/engine"
	"telegram-gamenight-bot/internal/game/minefield"
)

// MinefieldHandler handles minefield game commands and callbacks.
type MinefieldHandler struct {
	cfg  *config.Config
	game *minefield.Game
	kb   *minefield.KeyboardBuilder
}

// NewMinefieldHandler creates a new MinefieldHandler.
func NewMinefieldHandler(cfg *config.Config, game *minefield.Game) *MinefieldHandler {
	return &MinefieldHandler{
		cfg:  cfg,
		game: game,
		kb:   minefield.NewKeyboardBuilder(),
	}
}

// HandleMinefield handles the /minefield command: opens a lobby whose first
// round starts by itself when the join window closes.
// Requirements: 2.1, 5.1
func (h *MinefieldHandler) HandleMinefield(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}
	if c.Chat().Type == tele.ChatPrivate {
		return c.Reply("❌ Minefield is played in a group chat.")
	}

	chatID := c.Chat().ID
	thread := threadOf(c)
	mf := h.cfg.Games.Minefield
	window := int(h.cfg.Engine.JoinWindow().Seconds())

	_, err := h.game.OpenLobby(chatID, thread, sender.ID, displayName(sender), func(*engine.Collector) error {
		text := fmt.Sprintf("🧨 %s is opening a minefield! %dx%d board, %d mines.\nSign-ups close in %d seconds (%d-%d players), then round 1 starts on its own.",
			displayName(sender), mf.Rows, mf.Cols, mf.Mines, window, mf.MinPlayers, mf.MaxPlayers)
		_, sendErr := c.Bot().Send(c.Chat(), text, h.kb.BuildLobbyPanel(), sendOpts(thread))
		return sendErr
	})
	if err != nil {
		var occupied *engine.OccupiedError
		if errors.As(err, &occupied) {
			return c.Reply(fmt.Sprintf("❌ A game of %s is already running here; finish it or have the host end it first.",
				occupied.Existing.Game))
		}
		if errors.Is(err, minefield.ErrAnnounceFailed) {
			return c.Reply("❌ Could not open the lobby, please try again.")
		}
		return replyInternal(c, err, "minefield open")
	}
	return nil
}

// HandleEnd handles the /minefield_end command.
func (h *MinefieldHandler) HandleEnd(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}

	_, err := h.game.End(c.Chat().ID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoSession):
			return c.Reply("❌ No minefield game is running here.")
		case errors.Is(err, engine.ErrNotAuthorized):
			return c.Reply("❌ Only the host (or an admin) can end the game.")
		}
		return replyInternal(c, err, "minefield end")
	}
	return c.Send("🛑 The minefield game has been called off.")
}

// HandleCallback routes minefield inline button presses.
// Requirements: 5.3
func (h *MinefieldHandler) HandleCallback(c tele.Context) error {
	cb := c.Callback()
	sender := c.Sender()
	if cb == nil || sender == nil || cb.Message == nil {
		return nil
	}

	data := strings.TrimPrefix(cb.Data, "\f")
	action, param := minefield.DecodeCallback(data)
	chatID := cb.Message.Chat.ID

	switch action {
	case "join":
		outcome, err := h.game.Join(chatID, sender.ID, displayName(sender))
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "The sign-up window is closed."})
		}
		switch outcome {
		case engine.JoinAccepted:
			return c.Respond(&tele.CallbackResponse{Text: "You are in! 🧨"})
		case engine.JoinFilled:
			return c.Respond(&tele.CallbackResponse{Text: "You took the last seat! 🧨"})
		case engine.JoinDuplicate:
			return c.Respond(&tele.CallbackResponse{Text: "You already joined."})
		default:
			return c.Respond(&tele.CallbackResponse{Text: "The sign-up window is closed."})
		}

	case "leave":
		left, err := h.game.Leave(chatID, sender.ID)
		if err != nil || !left {
			return c.Respond(&tele.CallbackResponse{Text: "You are not on the list."})
		}
		return c.Respond(&tele.CallbackResponse{Text: "You are out."})

	case "pick":
		cell, err := strconv.Atoi(param)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Bad square."})
		}
		report, err := h.game.Pick(chatID, sender.ID, cell)
		if err != nil {
			switch {
			case errors.Is(err, minefield.ErrNotYourTurn):
				return c.Respond(&tele.CallbackResponse{Text: "Not your turn."})
			case errors.Is(err, minefield.ErrTooLate):
				return c.Respond(&tele.CallbackResponse{Text: "Too slow, the turn already passed."})
			case errors.Is(err, minefield.ErrNotInRound):
				return c.Respond(&tele.CallbackResponse{Text: "You are out of this round."})
			case errors.Is(err, minefield.ErrBadSquare):
				return c.Respond(&tele.CallbackResponse{Text: "That square cannot be picked."})
			case errors.Is(err, engine.ErrNoSession), errors.Is(err, minefield.ErrNotPlaying):
				return c.Respond(&tele.CallbackResponse{Text: "The board is not live right now."})
			}
			return c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
		}
		if report.Result == minefield.PickMine {
			return c.Respond(&tele.CallbackResponse{Text: "💥 BOOM!"})
		}
		return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("✅ Safe! %d to go.", report.SafeLeft)})

	case "noop":
		return c.Respond(&tele.CallbackResponse{})
	}

	log.Debug().Str("action", action).Msg("Unknown minefield callback")
	return c.Respond(&tele.CallbackResponse{})
}
