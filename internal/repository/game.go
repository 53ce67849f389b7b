package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wager-bot/internal/model"
)

var (
	ErrGameNotFound = errors.New("game not found")
)

// GameRepository stores the latest record of every game as JSONB.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

// Save upserts rec. An older record never overwrites a newer one.
func (r *GameRepository) Save(ctx context.Context, rec *model.GameRecord) error {
	const query = `
		INSERT INTO games (code, host, status, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE
		SET status = EXCLUDED.status, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at
		WHERE games.updated_at <= EXCLUDED.updated_at
	`

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode game %s: %w", rec.Code, err)
	}

	_, err = r.pool.Exec(ctx, query, rec.Code, rec.Host.Hex(), rec.Status(), data, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	return nil
}

// Get retrieves the stored record of code.
func (r *GameRepository) Get(ctx context.Context, code string) (*model.GameRecord, error) {
	const query = `SELECT record FROM games WHERE code = $1`

	var data []byte
	if err := r.pool.QueryRow(ctx, query, code).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return decodeGame(data)
}

// List returns stored games, newest activity first. An empty status matches
// every game.
func (r *GameRepository) List(ctx context.Context, status string, limit int) ([]*model.GameRecord, error) {
	const query = `
		SELECT record FROM games
		WHERE $1 = '' OR status = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*model.GameRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		rec, err := decodeGame(data)
		if err != nil {
			return nil, err
		}
		games = append(games, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}
	return games, nil
}

// All returns every stored game, oldest first, for restoring the registry.
func (r *GameRepository) All(ctx context.Context) ([]*model.GameRecord, error) {
	const query = `SELECT record FROM games ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}
	defer rows.Close()

	var games []*model.GameRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		rec, err := decodeGame(data)
		if err != nil {
			return nil, err
		}
		games = append(games, rec)
	}
	return games, rows.Err()
}

func decodeGame(data []byte) (*model.GameRecord, error) {
	var rec model.GameRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode game: %w", err)
	}
	return &rec, nil
}
