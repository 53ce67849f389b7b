package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CodeRepository records every game code ever handed out. Codes are never
// released, so the table only grows.
type CodeRepository struct {
	pool *pgxpool.Pool
}

// NewCodeRepository creates a new CodeRepository instance.
func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// Reserve claims code. It reports false when the code was already taken.
func (r *CodeRepository) Reserve(ctx context.Context, code string) (bool, error) {
	const query = `
		INSERT INTO game_codes (code, reserved_at)
		VALUES ($1, NOW())
		ON CONFLICT (code) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("failed to reserve code: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// IsReserved reports whether code was ever handed out.
func (r *CodeRepository) IsReserved(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM game_codes WHERE code = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}
