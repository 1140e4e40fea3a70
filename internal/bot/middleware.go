// Package bot provides middleware for the Telegram bot.
// Requirements: 6.4 - Admin permission verification
// Requirements: 7.1 - Whitelist enforcement
// Requirements: 7.2 - Private chat access control
package bot

import (
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-gamenight-bot/internal/config"
)

// dmAllowed remembers users seen in a whitelisted group. Night roles get
// their action keyboards over DM, so those users must be able to open a
// private chat with the bot even on whitelisted deployments.
// Requirements: 7.2
var dmAllowed sync.Map // int64 -> struct{}

// AllowPrivateUser grants a user access to the bot over private chat.
func AllowPrivateUser(userID int64) {
	dmAllowed.Store(userID, struct{}{})
}

// IsPrivateUserAllowed reports whether a user may talk to the bot in private.
func IsPrivateUserAllowed(userID int64) bool {
	_, ok := dmAllowed.Load(userID)
	return ok
}

// WhitelistMiddleware drops updates from chats outside the whitelist and
// gates private chats on prior group contact.
// Requirements: 7.1, 7.2
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat, sender := c.Chat(), c.Sender()
			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				// An empty whitelist means an open deployment.
				// Requirements: 7.2
				if len(cfg.Whitelist.Chats) == 0 || IsPrivateUserAllowed(sender.ID) {
					return next(c)
				}
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Dropping DM from user never seen in a whitelisted group")
				return nil
			}

			// Requirements: 7.1
			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Dropping update from non-whitelisted chat")
				return nil
			}

			// Group contact unlocks DMs for this user.
			AllowPrivateUser(sender.ID)
			return next(c)
		}
	}
}

// AdminMiddleware rejects commands from users not in the admin list.
// Requirements: 6.4
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Admin command refused")
				return c.Reply("❌ This command is for admins only")
			}
			return next(c)
		}
	}
}

// LoggingMiddleware logs every incoming update at debug level.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug()
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
			}
			ev.Str("text", c.Text()).Msg("Update received")
			return next(c)
		}
	}
}

// RecoveryMiddleware keeps a panicking handler from killing the poller.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					_ = c.Reply("❌ Something went wrong, please try again.")
				}
			}()
			return next(c)
		}
	}
}
