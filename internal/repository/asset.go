package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"wager-bot/internal/asset"
)

// AssetRepository persists the token allow-list. The native asset is always
// allowed and never stored.
type AssetRepository struct {
	pool *pgxpool.Pool
}

// NewAssetRepository creates a new AssetRepository instance.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{pool: pool}
}

// Allow adds or updates a token entry.
func (r *AssetRepository) Allow(ctx context.Context, e asset.Entry) error {
	if e.Ref.IsNative() {
		return fmt.Errorf("%w: the native asset is always allowed", asset.ErrInvalidRef)
	}

	const query = `
		INSERT INTO allowed_assets (address, symbol, decimals, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (address) DO UPDATE
		SET symbol = EXCLUDED.symbol, decimals = EXCLUDED.decimals
	`

	if _, err := r.pool.Exec(ctx, query, e.Ref.Token.Hex(), e.Symbol, e.Decimals); err != nil {
		return fmt.Errorf("failed to allow asset: %w", err)
	}
	return nil
}

// Revoke removes a token entry. It reports whether one existed.
func (r *AssetRepository) Revoke(ctx context.Context, ref asset.Ref) (bool, error) {
	const query = `DELETE FROM allowed_assets WHERE address = $1`

	result, err := r.pool.Exec(ctx, query, ref.Token.Hex())
	if err != nil {
		return false, fmt.Errorf("failed to revoke asset: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// List returns the stored token entries ordered by symbol.
func (r *AssetRepository) List(ctx context.Context) ([]asset.Entry, error) {
	const query = `SELECT address, symbol, decimals FROM allowed_assets ORDER BY symbol ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var entries []asset.Entry
	for rows.Next() {
		var (
			address string
			e       asset.Entry
		)
		if err := rows.Scan(&address, &e.Symbol, &e.Decimals); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		token, err := parseAddress(address)
		if err != nil {
			return nil, err
		}
		e.Ref = asset.Token(token)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return entries, nil
}
