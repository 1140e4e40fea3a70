// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
// Requirements: 8.1, 8.2 - PostgreSQL match history testing
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telegram-gamenight-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, runMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return pool, cleanup
}

// runMigrations applies the match history schema.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
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
	return err
}

func sampleRecord(chatID int64, game string, winners []int64, endedAgo time.Duration) *model.MatchRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.MatchRecord{
		ChatID:    chatID,
		Game:      game,
		OwnerID:   1,
		Players:   5,
		WinnerIDs: winners,
		Outcome:   model.OutcomeCompleted,
		StartedAt: now.Add(-endedAgo - 10*time.Minute),
		EndedAt:   now.Add(-endedAgo),
	}
}

// TestMatchRepository_InsertAndGet tests round-tripping a match record,
// including the winner ID array.
func TestMatchRepository_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	stored, err := repo.Insert(ctx, sampleRecord(100, "mafia", []int64{2, 3}, 0))
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.Equal(t, []int64{2, 3}, stored.WinnerIDs)

	got, err := repo.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ChatID, got.ChatID)
	assert.Equal(t, "mafia", got.Game)
	assert.Equal(t, []int64{2, 3}, got.WinnerIDs)
	assert.Equal(t, model.OutcomeCompleted, got.Outcome)

	_, err = repo.GetByID(ctx, stored.ID+999)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

// TestMatchRepository_RecentByChat tests per-chat history ordering and
// isolation between chats.
func TestMatchRepository_RecentByChat(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	_, err := repo.Insert(ctx, sampleRecord(100, "mafia", []int64{2}, 2*time.Hour))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, sampleRecord(100, "minefield", []int64{3}, time.Hour))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, sampleRecord(200, "mafia", []int64{9}, time.Minute))
	require.NoError(t, err)

	records, err := repo.RecentByChat(ctx, 100, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "minefield", records[0].Game, "newest first")
	assert.Equal(t, "mafia", records[1].Game)

	limited, err := repo.RecentByChat(ctx, 100, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	empty, err := repo.RecentByChat(ctx, 300, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestMatchRepository_TopWinners tests the leaderboard aggregation over
// winner ID arrays.
func TestMatchRepository_TopWinners(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	// User 2 wins twice, user 3 once, user 4 once in another chat.
	_, err := repo.Insert(ctx, sampleRecord(100, "mafia", []int64{2, 3}, 3*time.Hour))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, sampleRecord(100, "minefield", []int64{2}, time.Hour))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, sampleRecord(200, "mafia", []int64{4}, time.Hour))
	require.NoError(t, err)

	// Cancelled matches do not count as wins.
	cancelled := sampleRecord(100, "mafia", []int64{3}, time.Minute)
	cancelled.Outcome = model.OutcomeCancelled
	_, err = repo.Insert(ctx, cancelled)
	require.NoError(t, err)

	entries, err := repo.TopWinners(ctx, 100, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].UserID)
	assert.Equal(t, int64(2), entries[0].Wins)
	assert.Equal(t, int64(3), entries[1].UserID)
	assert.Equal(t, int64(1), entries[1].Wins)
}
