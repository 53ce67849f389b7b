package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migration is one idempotent schema step.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				telegram_id BIGINT PRIMARY KEY,
				username VARCHAR(255) NOT NULL,
				address CHAR(42) NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_users_username ON users(LOWER(username));
		`,
	},
	{
		name: "wallets table",
		sql: `
			CREATE TABLE IF NOT EXISTS wallets (
				address CHAR(42) NOT NULL,
				asset VARCHAR(64) NOT NULL,
				balance NUMERIC(78, 0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (address, asset)
			);
		`,
	},
	{
		name: "allowed_assets table",
		sql: `
			CREATE TABLE IF NOT EXISTS allowed_assets (
				address CHAR(42) PRIMARY KEY,
				symbol VARCHAR(16) NOT NULL,
				decimals INT NOT NULL CHECK (decimals >= 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		name: "game_codes table",
		sql: `
			CREATE TABLE IF NOT EXISTS game_codes (
				code VARCHAR(7) PRIMARY KEY,
				reserved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		name: "games table",
		sql: `
			CREATE TABLE IF NOT EXISTS games (
				code VARCHAR(7) PRIMARY KEY REFERENCES game_codes(code),
				host CHAR(42) NOT NULL,
				status VARCHAR(16) NOT NULL,
				record JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_games_status ON games(status, updated_at DESC);
		`,
	},
	{
		name: "escrow_journal table",
		sql: `
			CREATE TABLE IF NOT EXISTS escrow_journal (
				id UUID PRIMARY KEY,
				game_code VARCHAR(7) NOT NULL,
				kind VARCHAR(32) NOT NULL,
				actor CHAR(42) NOT NULL,
				subject CHAR(42) NOT NULL,
				asset VARCHAR(64) NOT NULL,
				amount NUMERIC(78, 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_escrow_journal_game ON escrow_journal(game_code, created_at);
			CREATE INDEX IF NOT EXISTS idx_escrow_journal_actor ON escrow_journal(actor, created_at DESC);
		`,
	},
}

// Migrate applies the schema. Every step is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
