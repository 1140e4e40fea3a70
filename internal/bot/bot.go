// Package bot provides the Telegram bot initialization and handler registration.
// Requirements: 7.3 - Load whitelist from configuration file
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-gamenight-bot/internal/config"
	"telegram-gamenight-bot/internal/game"
	"telegram-gamenight-bot/internal/game/mafia"
	"telegram-gamenight-bot/internal/game/minefield"
	"telegram-gamenight-bot/internal/handler"
	"telegram-gamenight-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot          *tele.Bot
	cfg          *config.Config
	gameRegistry *game.Registry

	// Handlers
	mafiaHandler *handler.MafiaHandler
	mineHandler  *handler.MinefieldHandler
	gamesHandler *handler.GamesHandler
	adminHandler *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	GameRegistry   *game.Registry
	MafiaGame      *mafia.Game
	MinefieldGame  *minefield.Game
	HistoryService *service.HistoryService
	Messenger      *TeleMessenger
}

// New creates a new Bot instance with the given dependencies and binds the
// shared messenger so the game engines can post on their own.
// Requirements: 7.3
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	deps.Messenger.Bind(teleBot)

	b := &Bot{
		bot:          teleBot,
		cfg:          deps.Config,
		gameRegistry: deps.GameRegistry,
	}

	// Initialize handlers
	b.mafiaHandler = handler.NewMafiaHandler(deps.Config, deps.MafiaGame)
	b.mineHandler = handler.NewMinefieldHandler(deps.Config, deps.MinefieldGame)
	b.gamesHandler = handler.NewGamesHandler(deps.GameRegistry, deps.HistoryService)
	b.adminHandler = handler.NewAdminHandler(deps.GameRegistry)

	// Register middleware
	b.registerMiddleware()

	// Register handlers
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	// Whitelist middleware - check if chat is allowed
	b.bot.Use(WhitelistMiddleware(b.cfg))

	// Logging middleware
	b.bot.Use(LoggingMiddleware())

	// Recovery middleware - a panicking handler must not take polling down
	b.bot.Use(RecoveryMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Discovery and history handlers
	b.bot.Handle("/start", b.gamesHandler.HandleGames)
	b.bot.Handle("/games", b.gamesHandler.HandleGames)
	b.bot.Handle("/history", b.gamesHandler.HandleHistory)
	b.bot.Handle("/leaderboard", b.gamesHandler.HandleLeaderboard)

	// Mafia handlers
	b.bot.Handle("/mafia", b.mafiaHandler.HandleMafia)
	b.bot.Handle("/mafia_begin", b.mafiaHandler.HandleBegin)
	b.bot.Handle("/mafia_night", b.mafiaHandler.HandleNight)
	b.bot.Handle("/mafia_day", b.mafiaHandler.HandleDay)
	b.bot.Handle("/mafia_end", b.mafiaHandler.HandleEnd)
	b.bot.Handle("/roster", b.mafiaHandler.HandleRoster)

	// Night actions arrive in private chat
	b.bot.Handle("/kill", b.mafiaHandler.HandleNightDM(mafia.ActionKill))
	b.bot.Handle("/check", b.mafiaHandler.HandleNightDM(mafia.ActionCheck))
	b.bot.Handle("/protect", b.mafiaHandler.HandleNightDM(mafia.ActionProtect))

	// Minefield handlers
	b.bot.Handle("/minefield", b.mineHandler.HandleMinefield)
	b.bot.Handle("/minefield_end", b.mineHandler.HandleEnd)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/endgame", b.adminHandler.HandleEndGame)

	// Generic callback handler for game buttons
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to appropriate handlers
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")

	if strings.HasPrefix(data, mafia.CallbackPrefix) {
		return b.mafiaHandler.HandleCallback(c)
	}
	if strings.HasPrefix(data, minefield.CallbackPrefix) {
		return b.mineHandler.HandleCallback(c)
	}

	log.Debug().Str("data", data).Msg("Unroutable callback")
	return c.Respond(&tele.CallbackResponse{})
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Int("games", b.gameRegistry.Count()).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
