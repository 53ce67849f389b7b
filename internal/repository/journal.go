package repository

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"wager-bot/internal/asset"
	"wager-bot/internal/model"
)

// JournalRepository is the append-only log of everything that happened to
// games, money movements included.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a new JournalRepository instance.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// Create appends ev. Replaying the same event ID is a no-op.
func (r *JournalRepository) Create(ctx context.Context, ev model.Event) error {
	const query = `
		INSERT INTO escrow_journal (id, game_code, kind, actor, subject, asset, amount, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::numeric, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		ev.ID.String(),
		ev.Code,
		ev.Kind,
		ev.Actor.Hex(),
		ev.Subject.Hex(),
		ev.Asset.String(),
		amountText(ev.Amount),
		ev.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ListByGame returns the journal of code, oldest first.
func (r *JournalRepository) ListByGame(ctx context.Context, code string, limit int) ([]*model.Event, error) {
	const query = `
		SELECT id::text, game_code, kind, actor, subject, asset, amount::text, created_at
		FROM escrow_journal
		WHERE game_code = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var (
			ev                 model.Event
			id, actor, subject string
			assetText          string
			amount             *string
		)
		if err := rows.Scan(&id, &ev.Code, &ev.Kind, &actor, &subject, &assetText, &amount, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse journal id: %w", err)
		}
		if ev.Actor, err = parseAddress(actor); err != nil {
			return nil, err
		}
		if ev.Subject, err = parseAddress(subject); err != nil {
			return nil, err
		}
		if ev.Asset, err = asset.ParseRef(assetText); err != nil {
			return nil, err
		}
		if amount != nil {
			if ev.Amount, err = parseAmount(*amount); err != nil {
				return nil, err
			}
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return events, nil
}

// SumByGameAndKind totals the amounts of one kind of movement in a game.
func (r *JournalRepository) SumByGameAndKind(ctx context.Context, code, kind string) (*big.Int, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM escrow_journal
		WHERE game_code = $1 AND kind = $2
	`

	var total string
	if err := r.pool.QueryRow(ctx, query, code, kind).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to sum journal: %w", err)
	}
	return parseAmount(total)
}
