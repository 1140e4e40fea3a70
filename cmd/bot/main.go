// Package main is the entry point for the game night bot.
// Requirements: 8.3 - Database migrations for schema management
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-gamenight-bot/internal/bot"
	"telegram-gamenight-bot/internal/config"
	"telegram-gamenight-bot/internal/game"
	"telegram-gamenight-bot/internal/game/mafia"
	"telegram-gamenight-bot/internal/game/minefield"
	"telegram-gamenight-bot/internal/pkg/db"
	"telegram-gamenight-bot/internal/pkg/lock"
	"telegram-gamenight-bot/internal/repository"
	"telegram-gamenight-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories and services
	matchRepo := repository.NewMatchRepository(dbPool.Pool)
	historyService := service.NewHistoryService(matchRepo)

	// Per-chat lock serializes every session operation in a chat
	chatLock := lock.NewChatLock()

	// The messenger is bound to the telebot instance once it exists; the
	// games hold it from the start so their timers can post on their own.
	messenger := bot.NewTeleMessenger()
	authorizer := bot.NewConfigAuthorizer(cfg)

	// Initialize game registry and register games
	gameRegistry := game.NewRegistry()

	mafiaGame := mafia.New(mafia.Config{
		MinPlayers: cfg.Games.Mafia.MinPlayers,
		MaxPlayers: cfg.Games.Mafia.MaxPlayers,
		JoinWindow: cfg.Engine.JoinWindow(),
	}, messenger, authorizer, chatLock, historyService)
	if err := gameRegistry.Register(mafiaGame); err != nil {
		log.Fatal().Err(err).Msg("Failed to register mafia game")
	}

	mineGame := minefield.New(minefield.Config{
		Rows:          cfg.Games.Minefield.Rows,
		Cols:          cfg.Games.Minefield.Cols,
		Mines:         cfg.Games.Minefield.Mines,
		TargetScore:   cfg.Games.Minefield.TargetScore,
		MinPlayers:    cfg.Games.Minefield.MinPlayers,
		MaxPlayers:    cfg.Games.Minefield.MaxPlayers,
		JoinWindow:    cfg.Engine.JoinWindow(),
		WarnAfter:     cfg.Engine.Warn(),
		SkipAfter:     cfg.Engine.Skip(),
		RoundCooldown: cfg.Engine.RoundCooldown(),
	}, messenger, authorizer, chatLock, historyService)
	if err := gameRegistry.Register(mineGame); err != nil {
		log.Fatal().Err(err).Msg("Failed to register minefield game")
	}

	log.Info().
		Int("game_count", gameRegistry.Count()).
		Strs("games", gameRegistry.Commands()).
		Msg("Games registered")

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:         cfg,
		GameRegistry:   gameRegistry,
		MafiaGame:      mafiaGame,
		MinefieldGame:  mineGame,
		HistoryService: historyService,
		Messenger:      messenger,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
// Requirements: 8.3 - Implement database migrations for schema management
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create match records table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_records (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			game VARCHAR(50) NOT NULL,
			owner_id BIGINT NOT NULL,
			players INT NOT NULL,
			winner_ids BIGINT[] NOT NULL DEFAULT '{}',
			outcome VARCHAR(20) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_match_records_chat_time ON match_records(chat_id, ended_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: match_records table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
