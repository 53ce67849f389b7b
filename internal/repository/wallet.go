package repository

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wager-bot/internal/asset"
	"wager-bot/internal/model"
)

// WalletRepository is the house ledger of per-asset balances. It also acts
// as the escrow's Transferer: value held by games sits on the escrow address.
type WalletRepository struct {
	pool   *pgxpool.Pool
	escrow common.Address
}

var _ asset.Transferer = (*WalletRepository)(nil)

// NewWalletRepository creates a new WalletRepository instance holding escrowed
// value on the escrow address.
func NewWalletRepository(pool *pgxpool.Pool, escrow common.Address) *WalletRepository {
	return &WalletRepository{pool: pool, escrow: escrow}
}

// EscrowAddress returns the address holding escrowed value.
func (r *WalletRepository) EscrowAddress() common.Address {
	return r.escrow
}

// Credit adds amount to who's balance of ref and returns the new balance.
func (r *WalletRepository) Credit(ctx context.Context, ref asset.Ref, who common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("credit amount must be positive")
	}

	var balance string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		balance, err = credit(ctx, tx, ref, who, amount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return parseAmount(balance)
}

// BalanceOf returns who's balance of ref, zero when none is recorded.
func (r *WalletRepository) BalanceOf(ctx context.Context, ref asset.Ref, who common.Address) (*big.Int, error) {
	const query = `
		SELECT COALESCE((SELECT balance FROM wallets WHERE address = $1 AND asset = $2), 0)::text
	`

	var balance string
	if err := r.pool.QueryRow(ctx, query, who.Hex(), ref.String()).Scan(&balance); err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseAmount(balance)
}

// List returns every non-empty balance of who.
func (r *WalletRepository) List(ctx context.Context, who common.Address) ([]*model.Wallet, error) {
	const query = `
		SELECT asset, balance::text, updated_at
		FROM wallets
		WHERE address = $1 AND balance > 0
		ORDER BY asset ASC
	`

	rows, err := r.pool.Query(ctx, query, who.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*model.Wallet
	for rows.Next() {
		var (
			w         = model.Wallet{Address: who}
			assetText string
			balance   string
		)
		if err := rows.Scan(&assetText, &balance, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		if w.Asset, err = asset.ParseRef(assetText); err != nil {
			return nil, err
		}
		if w.Balance, err = parseAmount(balance); err != nil {
			return nil, err
		}
		wallets = append(wallets, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}
	return wallets, nil
}

// Pull implements asset.Transferer by moving amount from `from` to escrow.
func (r *WalletRepository) Pull(ctx context.Context, ref asset.Ref, from common.Address, amount *big.Int) error {
	return r.move(ctx, ref, from, r.escrow, amount)
}

// Push implements asset.Transferer by moving amount from escrow to `to`.
func (r *WalletRepository) Push(ctx context.Context, ref asset.Ref, to common.Address, amount *big.Int) error {
	return r.move(ctx, ref, r.escrow, to, amount)
}

func (r *WalletRepository) move(ctx context.Context, ref asset.Ref, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const debit = `
			UPDATE wallets
			SET balance = balance - $3::numeric, updated_at = NOW()
			WHERE address = $1 AND asset = $2 AND balance >= $3::numeric
		`

		result, err := tx.Exec(ctx, debit, from.Hex(), ref.String(), amount.String())
		if err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s holds less than %s of %s", asset.ErrInsufficientFunds, from.Hex(), amount, ref)
		}

		_, err = credit(ctx, tx, ref, to, amount)
		return err
	})
}

func credit(ctx context.Context, tx pgx.Tx, ref asset.Ref, who common.Address, amount *big.Int) (string, error) {
	const query = `
		INSERT INTO wallets (address, asset, balance, updated_at)
		VALUES ($1, $2, $3::numeric, NOW())
		ON CONFLICT (address, asset) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance::text
	`

	var balance string
	if err := tx.QueryRow(ctx, query, who.Hex(), ref.String(), amount.String()).Scan(&balance); err != nil {
		return "", fmt.Errorf("failed to credit wallet: %w", err)
	}
	return balance, nil
}
