package mafia

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"
)

const (
	// CallbackPrefix is the prefix for all mafia callback data
	CallbackPrefix = "mafia_"
)

// KeyboardBuilder builds Telegram inline keyboards for the mafia game.
// Requirements: 4.1, 4.4
type KeyboardBuilder struct{}

// NewKeyboardBuilder creates a new KeyboardBuilder instance.
func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

// EncodeCallback encodes an action and parameter into callback data.
func EncodeCallback(action string, param string) string {
	if param != "" {
		return fmt.Sprintf("%s%s_%s", CallbackPrefix, action, param)
	}
	return fmt.Sprintf("%s%s", CallbackPrefix, action)
}

// DecodeCallback decodes callback data into action and parameter.
func DecodeCallback(data string) (action string, param string) {
	if !strings.HasPrefix(data, CallbackPrefix) {
		return "", ""
	}

	content := strings.TrimPrefix(data, CallbackPrefix)
	parts := strings.SplitN(content, "_", 2)
	action = parts[0]
	if len(parts) > 1 {
		param = parts[1]
	}
	return action, param
}

// BuildLobbyPanel builds the sign-up keyboard shown under the join
// announcement.
// Layout:
//   - Row 1: [🙋 Join] [🚪 Leave]
func (kb *KeyboardBuilder) BuildLobbyPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	row := []tele.InlineButton{
		{
			Text: "🙋 Join",
			Data: EncodeCallback("join", ""),
		},
		{
			Text: "🚪 Leave",
			Data: EncodeCallback("leave", ""),
		},
	}

	markup.InlineKeyboard = [][]tele.InlineButton{row}
	return markup
}

// BuildVotePanel builds the day-vote keyboard, one button per living
// player plus a retract row. Buttons carry the target's user ID.
func (kb *KeyboardBuilder) BuildVotePanel(roster []RosterEntry) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, e := range roster {
		row = append(row, tele.InlineButton{
			Text: fmt.Sprintf("%d. %s", e.Index, e.Name),
			Data: EncodeCallback("vote", fmt.Sprintf("%d", e.ID)),
		})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tele.InlineButton{
		{
			Text: "↩️ Retract vote",
			Data: EncodeCallback("retract", ""),
		},
	})

	markup.InlineKeyboard = rows
	return markup
}
