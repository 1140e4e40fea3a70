// Package handler provides Telegram bot command handlers.
// Requirements: 4.1, 4.3, 4.4 - Mafia commands and callbacks
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
	"telegram-gamenight-bot/internal/game/mafia"
)

// MafiaHandler handles mafia game commands and callbacks.
type MafiaHandler struct {
	cfg  *config.Config
	game *mafia.Game
	kb   *mafia.KeyboardBuilder
}

// NewMafiaHandler creates a new MafiaHandler.
func NewMafiaHandler(cfg *config.Config, game *mafia.Game) *MafiaHandler {
	return &MafiaHandler{
		cfg:  cfg,
		game: game,
		kb:   mafia.NewKeyboardBuilder(),
	}
}

// displayName prefers the username, falling back to the first name.
func displayName(u *tele.User) string {
	if u == nil {
		return "?"
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}

// threadOf returns the forum thread a message arrived in, 0 outside forums.
func threadOf(c tele.Context) int64 {
	if msg := c.Message(); msg != nil {
		return int64(msg.ThreadID)
	}
	return 0
}

// guardThread rejects a command addressed from the wrong forum thread.
func (h *MafiaHandler) guardThread(c tele.Context) bool {
	chatID := c.Chat().ID
	if h.game.Active(chatID) && !h.game.SameThread(chatID, threadOf(c)) {
		_ = c.Reply("❌ This chat's game lives in another topic.")
		return false
	}
	return true
}

// HandleMafia handles the /mafia command: opens a lobby with a join window.
// Requirements: 2.1, 4.1
func (h *MafiaHandler) HandleMafia(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}
	if c.Chat().Type == tele.ChatPrivate {
		return c.Reply("❌ Mafia is played in a group chat.")
	}

	chatID := c.Chat().ID
	thread := threadOf(c)
	window := int(h.cfg.Engine.JoinWindow().Seconds())

	_, err := h.game.OpenLobby(chatID, thread, sender.ID, displayName(sender), func(*engine.Collector) error {
		text := fmt.Sprintf("🔪 %s is gathering a game of Mafia!\nSign-ups close in %d seconds (%d-%d players).",
			displayName(sender), window, h.cfg.Games.Mafia.MinPlayers, h.cfg.Games.Mafia.MaxPlayers)
		_, sendErr := c.Bot().Send(c.Chat(), text, h.kb.BuildLobbyPanel(), sendOpts(thread))
		return sendErr
	})
	if err != nil {
		var occupied *engine.OccupiedError
		if errors.As(err, &occupied) {
			return c.Reply(fmt.Sprintf("❌ A game of %s is already running here; finish it or have the host end it first.",
				occupied.Existing.Game))
		}
		if errors.Is(err, mafia.ErrAnnounceFailed) {
			return c.Reply("❌ Could not open the lobby, please try again.")
		}
		return replyInternal(c, err, "mafia open")
	}
	return nil
}

// HandleBegin handles the /mafia_begin command: deals roles and starts the
// first night.
// Requirements: 4.2
func (h *MafiaHandler) HandleBegin(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}
	if !h.guardThread(c) {
		return nil
	}
	chatID := c.Chat().ID

	report, err := h.game.Begin(chatID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoSession):
			return c.Reply("❌ No mafia lobby is open here. Start one with /mafia.")
		case errors.Is(err, engine.ErrNotAuthorized):
			return c.Reply("❌ Only the host (or an admin) can start the game.")
		case errors.Is(err, mafia.ErrNotEnoughPlayers):
			return c.Reply(fmt.Sprintf("❌ %s", err))
		case errors.Is(err, mafia.ErrWrongPhase):
			return c.Reply("❌ The game has already started.")
		}
		return replyInternal(c, err, "mafia begin")
	}

	text := fmt.Sprintf("🌙 Night 1 falls over %d players: %d mafia hide among you", report.Players, report.MafiaCount)
	if report.HasDetective {
		text += ", a detective investigates"
	}
	if report.HasDoctor {
		text += ", a doctor stands watch"
	}
	text += ".\nRoles went out by private message. Night roles: act in your DM with me, then the host runs /mafia_night."

	if len(report.FailedDMs) > 0 {
		text += fmt.Sprintf("\n\n⚠️ %d player(s) have no private chat with me and did not get their role. Have them message me directly so the host can deal with it.", len(report.FailedDMs))
	}
	return c.Send(text)
}

// HandleNight handles the /mafia_night command: resolves the night.
// Requirements: 4.3, 4.5
func (h *MafiaHandler) HandleNight(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}
	if !h.guardThread(c) {
		return nil
	}
	chatID := c.Chat().ID

	report, err := h.game.ResolveNight(chatID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoSession):
			return c.Reply("❌ No mafia game is running here.")
		case errors.Is(err, engine.ErrNotAuthorized):
			return c.Reply("❌ Only the host (or an admin) can resolve the night.")
		case errors.Is(err, mafia.ErrWrongPhase):
			return c.Reply("❌ It is not night right now.")
		}
		return replyInternal(c, err, "mafia night")
	}

	var text string
	switch {
	case report.Killed != 0:
		text = fmt.Sprintf("☀️ Dawn breaks after night %d... %s was found dead. 💀", report.Night, report.KilledName)
	default:
		// A save and a quiet night read the same in public.
		text = fmt.Sprintf("☀️ Dawn breaks after night %d... everyone is still alive!", report.Night)
	}

	if report.Over {
		return c.Send(text + "\n\n" + verdictText(report.Winner))
	}

	text += "\n🗳 Day breaks: debate, then vote below. The host closes the day with /mafia_day."
	return c.Send(text, h.kb.BuildVotePanel(report.Living))
}

// HandleDay handles the /mafia_day command: tallies the day vote.
// Requirements: 4.4, 4.5
func (h *MafiaHandler) HandleDay(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}
	if !h.guardThread(c) {
		return nil
	}
	chatID := c.Chat().ID

	report, err := h.game.EndDay(chatID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoSession):
			return c.Reply("❌ No mafia game is running here.")
		case errors.Is(err, engine.ErrNotAuthorized):
			return c.Reply("❌ Only the host (or an admin) can close the day.")
		case errors.Is(err, mafia.ErrWrongPhase):
			return c.Reply("❌ It is not day right now.")
		}
		return replyInternal(c, err, "mafia day")
	}

	var text string
	if report.Eliminated != 0 {
		role := "an innocent townsperson"
		if report.WasMafia {
			role = "MAFIA"
		}
		text = fmt.Sprintf("⚖️ The town has spoken: %s is eliminated... they were %s.", report.EliminatedName, role)
	} else {
		text = fmt.Sprintf("⚖️ No one reached a majority of %d votes. Nobody is eliminated.", report.Majority)
	}

	if report.Over {
		return c.Send(text + "\n\n" + verdictText(report.Winner))
	}

	text += fmt.Sprintf("\n🌙 Night %d falls. Night roles: act in your DM with me.", report.Night+1)
	return c.Send(text)
}

// HandleEnd handles the /mafia_end command.
func (h *MafiaHandler) HandleEnd(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Chat() == nil {
		return nil
	}
	chatID := c.Chat().ID

	_, err := h.game.End(chatID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoSession):
			return c.Reply("❌ No mafia game is running here.")
		case errors.Is(err, engine.ErrNotAuthorized):
			return c.Reply("❌ Only the host (or an admin) can end the game.")
		}
		return replyInternal(c, err, "mafia end")
	}
	return c.Send("🛑 The mafia game has been called off.")
}

// HandleRoster handles the /roster command.
func (h *MafiaHandler) HandleRoster(c tele.Context) error {
	if c.Chat() == nil {
		return nil
	}
	roster, err := h.game.Roster(c.Chat().ID)
	if err != nil {
		return c.Reply("❌ No dealt mafia game is running here.")
	}
	text := "Living players:"
	for _, e := range roster {
		text += fmt.Sprintf("\n%d. %s", e.Index, e.Name)
	}
	return c.Reply(text)
}

// HandleNightDM handles the private /kill, /check and /protect commands.
// The chat is found through the sender, since private messages carry no
// group scope.
// Requirements: 4.3
func (h *MafiaHandler) HandleNightDM(action mafia.NightAction) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || c.Chat() == nil {
			return nil
		}
		if c.Chat().Type != tele.ChatPrivate {
			return c.Reply("🤫 Night actions are taken here, in private.")
		}

		args := c.Args()
		if len(args) < 1 {
			return c.Reply(fmt.Sprintf("❌ Usage: /%s <number from the roster>", action))
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return c.Reply("❌ Pick a number from the roster in your role message.")
		}

		scope, ok := h.game.FindByPlayer(sender.ID)
		if !ok {
			return c.Reply("❌ You are not in a running mafia game.")
		}

		target, err := h.game.SubmitNightAction(scope, sender.ID, action, idx)
		if err != nil {
			switch {
			case errors.Is(err, mafia.ErrWrongPhase):
				return c.Reply("❌ It is not night right now.")
			case errors.Is(err, mafia.ErrWrongRole):
				return c.Reply("❌ Your role cannot do that.")
			case errors.Is(err, mafia.ErrBadTarget):
				return c.Reply(fmt.Sprintf("❌ %s", err))
			case errors.Is(err, mafia.ErrNotAlive):
				return c.Reply("💀 The dead take no actions.")
			}
			return replyInternal(c, err, "mafia night action")
		}
		return c.Reply(fmt.Sprintf("✅ Noted: %s on %s. You can change it until the host resolves the night.", action, target.Name))
	}
}

// HandleCallback routes mafia inline button presses.
// Requirements: 4.1, 4.4
func (h *MafiaHandler) HandleCallback(c tele.Context) error {
	cb := c.Callback()
	sender := c.Sender()
	if cb == nil || sender == nil || cb.Message == nil {
		return nil
	}

	data := strings.TrimPrefix(cb.Data, "\f")
	action, param := mafia.DecodeCallback(data)
	chatID := cb.Message.Chat.ID

	switch action {
	case "join":
		outcome, err := h.game.Join(chatID, sender.ID, displayName(sender))
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "The sign-up window is closed."})
		}
		switch outcome {
		case engine.JoinAccepted:
			return c.Respond(&tele.CallbackResponse{Text: "You are in! 🔪"})
		case engine.JoinFilled:
			_ = c.Respond(&tele.CallbackResponse{Text: "You took the last seat! 🔪"})
			return nil
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

	case "vote":
		target, err := strconv.ParseInt(param, 10, 64)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Bad vote."})
		}
		if err := h.game.Vote(chatID, sender.ID, target); err != nil {
			switch {
			case errors.Is(err, mafia.ErrNotAlive):
				return c.Respond(&tele.CallbackResponse{Text: "The dead do not vote."})
			case errors.Is(err, mafia.ErrNotInGame):
				return c.Respond(&tele.CallbackResponse{Text: "You are not in this game."})
			default:
				return c.Respond(&tele.CallbackResponse{Text: "That vote does not count."})
			}
		}
		return c.Respond(&tele.CallbackResponse{Text: "Vote recorded. 🗳"})

	case "retract":
		if err := h.game.RetractVote(chatID, sender.ID); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "You have no vote to retract."})
		}
		return c.Respond(&tele.CallbackResponse{Text: "Vote withdrawn."})
	}

	log.Debug().Str("action", action).Msg("Unknown mafia callback")
	return c.Respond(&tele.CallbackResponse{})
}

// verdictText renders the end-of-game banner.
func verdictText(w mafia.Winner) string {
	if w == mafia.WinnerTown {
		return "🎉 The town prevails! The last mafioso has fallen."
	}
	return "😈 The mafia wins! They now match the town guess for guess."
}

// sendOpts builds the send options for a forum thread.
func sendOpts(thread int64) *tele.SendOptions {
	if thread == 0 {
		return &tele.SendOptions{}
	}
	return &tele.SendOptions{ThreadID: int(thread)}
}

// replyInternal logs an unexpected error and shows a generic refusal.
func replyInternal(c tele.Context, err error, op string) error {
	log.Error().Err(err).Str("op", op).Msg("Unexpected handler error")
	return c.Reply("❌ Something went wrong, please try again.")
}
