// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Games     GamesConfig     `mapstructure:"games"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// EngineConfig holds session engine timings shared by all games.
type EngineConfig struct {
	JoinWindowSeconds    int `mapstructure:"join_window_seconds"`
	WarnSeconds          int `mapstructure:"warn_seconds"`
	SkipSeconds          int `mapstructure:"skip_seconds"`
	RoundCooldownSeconds int `mapstructure:"round_cooldown_seconds"`
}

// JoinWindow returns the join window as a duration.
func (e *EngineConfig) JoinWindow() time.Duration {
	return time.Duration(e.JoinWindowSeconds) * time.Second
}

// Warn returns the turn warning delay as a duration.
func (e *EngineConfig) Warn() time.Duration {
	return time.Duration(e.WarnSeconds) * time.Second
}

// Skip returns the turn forfeit delay as a duration.
func (e *EngineConfig) Skip() time.Duration {
	return time.Duration(e.SkipSeconds) * time.Second
}

// RoundCooldown returns the inter-round pause as a duration.
func (e *EngineConfig) RoundCooldown() time.Duration {
	return time.Duration(e.RoundCooldownSeconds) * time.Second
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	Mafia     MafiaConfig     `mapstructure:"mafia"`
	Minefield MinefieldConfig `mapstructure:"minefield"`
}

// MafiaConfig holds mafia game configuration.
type MafiaConfig struct {
	MinPlayers int `mapstructure:"min_players"`
	MaxPlayers int `mapstructure:"max_players"`
}

// MinefieldConfig holds minefield game configuration.
type MinefieldConfig struct {
	Rows        int `mapstructure:"rows"`
	Cols        int `mapstructure:"cols"`
	Mines       int `mapstructure:"mines"`
	TargetScore int `mapstructure:"target_score"`
	MinPlayers  int `mapstructure:"min_players"`
	MaxPlayers  int `mapstructure:"max_players"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, ENGINE_SKIP_SECONDS.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Engine.SkipSeconds <= cfg.Engine.WarnSeconds {
		return nil, fmt.Errorf("engine.skip_seconds (%d) must be greater than engine.warn_seconds (%d)",
			cfg.Engine.SkipSeconds, cfg.Engine.WarnSeconds)
	}
	if cfg.Games.Minefield.Mines >= cfg.Games.Minefield.Rows*cfg.Games.Minefield.Cols {
		return nil, fmt.Errorf("games.minefield.mines (%d) must leave at least one safe square",
			cfg.Games.Minefield.Mines)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gamenight")
	v.SetDefault("database.name", "gamenight")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Engine defaults
	v.SetDefault("engine.join_window_seconds", 45)
	v.SetDefault("engine.warn_seconds", 20)
	v.SetDefault("engine.skip_seconds", 35)
	v.SetDefault("engine.round_cooldown_seconds", 8)

	// Game defaults
	v.SetDefault("games.mafia.min_players", 4)
	v.SetDefault("games.mafia.max_players", 15)
	v.SetDefault("games.minefield.rows", 4)
	v.SetDefault("games.minefield.cols", 4)
	v.SetDefault("games.minefield.mines", 5)
	v.SetDefault("games.minefield.target_score", 3)
	v.SetDefault("games.minefield.min_players", 2)
	v.SetDefault("games.minefield.max_players", 16)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
