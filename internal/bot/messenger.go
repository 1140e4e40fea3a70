// Package bot provides the Telegram bot initialization and handler registration.
// Requirements: 2.2, 4.6 - Outbound messaging for the game engines
package bot

import (
	"fmt"
	"sync"

	tele "gopkg.in/telebot.v3"

	"telegram-gamenight-bot/internal/config"
)

// TeleMessenger adapts a telebot instance to the engine's Messenger
// interface. The games are constructed before the bot exists, so the
// instance is bound late with Bind; until then every send fails cleanly.
type TeleMessenger struct {
	mu  sync.RWMutex
	bot *tele.Bot
}

// NewTeleMessenger creates an unbound TeleMessenger.
func NewTeleMessenger() *TeleMessenger {
	return &TeleMessenger{}
}

// Bind attaches the telebot instance. Called once during startup.
func (m *TeleMessenger) Bind(b *tele.Bot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bot = b
}

func (m *TeleMessenger) instance() (*tele.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bot == nil {
		return nil, fmt.Errorf("messenger not bound to a bot yet")
	}
	return m.bot, nil
}

// Announce posts to a group chat, targeting the forum thread when one is
// bound. Returns the posted message's ID.
func (m *TeleMessenger) Announce(scope, thread int64, what any, opts ...any) (int, error) {
	b, err := m.instance()
	if err != nil {
		return 0, err
	}

	if thread != 0 {
		opts = append(opts, &tele.SendOptions{ThreadID: int(thread)})
	}
	msg, err := b.Send(tele.ChatID(scope), what, opts...)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Notify sends a private message to a user. Fails when the user has never
// opened a private chat with the bot.
func (m *TeleMessenger) Notify(userID int64, what any, opts ...any) error {
	b, err := m.instance()
	if err != nil {
		return err
	}
	_, err = b.Send(tele.ChatID(userID), what, opts...)
	return err
}

// DisplayName resolves a user's name through the chat's member list,
// falling back to a numeric form.
func (m *TeleMessenger) DisplayName(scope, userID int64) string {
	fallback := fmt.Sprintf("user %d", userID)
	b, err := m.instance()
	if err != nil {
		return fallback
	}

	member, err := b.ChatMemberOf(&tele.Chat{ID: scope}, &tele.User{ID: userID})
	if err != nil || member.User == nil {
		return fallback
	}
	if member.User.Username != "" {
		return "@" + member.User.Username
	}
	if member.User.FirstName != "" {
		return member.User.FirstName
	}
	return fallback
}

// ConfigAuthorizer grants session management to the owner and to the
// configured admins.
// Requirements: 6.4
type ConfigAuthorizer struct {
	cfg *config.Config
}

// NewConfigAuthorizer creates a ConfigAuthorizer.
func NewConfigAuthorizer(cfg *config.Config) *ConfigAuthorizer {
	return &ConfigAuthorizer{cfg: cfg}
}

// CanManage reports whether the actor may manage a session owned by owner.
func (a *ConfigAuthorizer) CanManage(actorID, ownerID int64) bool {
	return actorID == ownerID || a.cfg.IsAdmin(actorID)
}
