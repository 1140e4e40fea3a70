package minefield

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"
)

const (
	// CallbackPrefix is the prefix for all minefield callback data
	CallbackPrefix = "mf_"
)

// KeyboardBuilder builds Telegram inline keyboards for the minefield game.
// Requirements: 5.3
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

// BuildBoard builds the board keyboard, one button per square. Revealed
// squares show a checkmark and carry a no-op callback.
func (kb *KeyboardBuilder) BuildBoard(grid []Square, cols int) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for i, sq := range grid {
		btn := tele.InlineButton{
			Text: fmt.Sprintf("%d", i+1),
			Data: EncodeCallback("pick", fmt.Sprintf("%d", i)),
		}
		if sq.Revealed {
			btn.Text = "✅"
			btn.Data = EncodeCallback("noop", "")
		}
		row = append(row, btn)
		if len(row) == cols {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	markup.InlineKeyboard = rows
	return markup
}
