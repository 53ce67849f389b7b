package game

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"wager-bot/internal/asset"
	"wager-bot/internal/escrow"
	"wager-bot/internal/game/consensus"
	"wager-bot/internal/game/payout"
	"wager-bot/internal/game/roster"
	"wager-bot/internal/model"
)

// Game is one escrowed contest. All mutating methods run under the
// registry's per-code lock; reads go through the published record.
type Game struct {
	code      string
	host      common.Address
	buyIn     *big.Int
	splits    []uint16
	roster    *roster.Roster
	ledger    *escrow.Ledger
	tally     *consensus.Tally
	claims    *payout.Claims
	createdAt time.Time

	published atomic.Pointer[model.GameRecord]
}

func newGame(code string, host common.Address, buyIn *big.Int, r *roster.Roster, ledger *escrow.Ledger, now time.Time) *Game {
	return &Game{
		code:      code,
		host:      host,
		buyIn:     new(big.Int).Set(buyIn),
		roster:    r,
		ledger:    ledger,
		tally:     consensus.NewTally(),
		claims:    payout.NewClaims(),
		createdAt: now,
	}
}

func restoreGame(rec *model.GameRecord, transferer asset.Transferer) *Game {
	return &Game{
		code:      rec.Code,
		host:      rec.Host,
		buyIn:     new(big.Int).Set(rec.BuyIn),
		splits:    append([]uint16(nil), rec.Splits...),
		roster:    roster.Restore(rec.Roster),
		ledger:    escrow.RestoreLedger(rec.Asset, transferer, rec.Pot, rec.Balances, rec.Totals),
		tally:     consensus.Restore(rec.Consensus),
		claims:    payout.NewClaims(rec.Claimed...),
		createdAt: rec.CreatedAt,
	}
}

// record builds a fresh, unshared snapshot.
func (g *Game) record(now time.Time) *model.GameRecord {
	return &model.GameRecord{
		Code:      g.code,
		Host:      g.host,
		Asset:     g.ledger.Asset(),
		BuyIn:     new(big.Int).Set(g.buyIn),
		Splits:    append([]uint16(nil), g.splits...),
		Roster:    g.roster.State(),
		Pot:       g.ledger.TotalPot(),
		Balances:  g.ledger.Balances(),
		Totals:    g.ledger.Totals(),
		Consensus: g.tally.State(),
		Claimed:   g.claims.List(),
		CreatedAt: g.createdAt,
		UpdatedAt: now,
	}
}

func (g *Game) publish(now time.Time) *model.GameRecord {
	rec := g.record(now)
	g.published.Store(rec)
	return rec
}

// snapshot returns the last published record.
func (g *Game) snapshot() *model.GameRecord {
	return g.published.Load()
}

func (g *Game) event(kind string, actor common.Address) model.Event {
	return model.Event{
		ID:    uuid.New(),
		Code:  g.code,
		Kind:  kind,
		Actor: actor,
		Asset: g.ledger.Asset(),
	}
}

func (g *Game) moneyEvent(r *escrow.Receipt, actor common.Address) model.Event {
	return model.Event{
		ID:      r.ID,
		Code:    g.code,
		Kind:    r.Kind,
		Actor:   actor,
		Subject: r.Party,
		Asset:   r.Asset,
		Amount:  r.Amount,
	}
}

func (g *Game) join(ctx context.Context, payer common.Address, attached *big.Int) ([]model.Event, error) {
	seat, err := g.roster.CanJoinAsPlayer(payer)
	if err != nil {
		return nil, err
	}
	if !seat {
		// Judges are never charged.
		if attached != nil && attached.Sign() != 0 {
			return nil, ErrAmountMismatch
		}
		if _, err := g.roster.Join(payer); err != nil {
			return nil, err
		}
		return []model.Event{g.event(model.EventJoined, payer)}, nil
	}

	receipt, err := g.ledger.Deposit(ctx, payer, g.buyIn, attached)
	if err != nil {
		return nil, err
	}
	if _, err := g.roster.Join(payer); err != nil {
		// CanJoinAsPlayer ran under the same lock, so this cannot happen.
		return nil, err
	}
	return []model.Event{g.moneyEvent(receipt, payer)}, nil
}

func (g *Game) addToPot(ctx context.Context, payer common.Address, amount, attached *big.Int) ([]model.Event, error) {
	if _, done := g.tally.Outcome().(consensus.Confirmed); done {
		return nil, ErrAlreadyConfirmed
	}
	receipt, err := g.ledger.AddToPot(ctx, payer, amount, attached)
	if err != nil {
		return nil, err
	}
	return []model.Event{g.moneyEvent(receipt, payer)}, nil
}

func (g *Game) lock(caller common.Address) ([]model.Event, error) {
	if caller != g.host {
		return nil, ErrNotHost
	}
	if err := g.roster.Lock(); err != nil {
		return nil, err
	}
	return []model.Event{g.event(model.EventLocked, caller)}, nil
}

func (g *Game) setSplits(caller common.Address, splits []uint16) ([]model.Event, error) {
	if caller != g.host {
		return nil, ErrNotHost
	}
	if g.roster.Locked() {
		return nil, ErrGameLocked
	}
	if err := payout.ValidateSplits(splits); err != nil {
		return nil, err
	}
	g.splits = append([]uint16(nil), splits...)
	return []model.Event{g.event(model.EventSplitsSet, caller)}, nil
}

func (g *Game) setJudges(caller common.Address, judges []common.Address) ([]model.Event, error) {
	if caller != g.host {
		return nil, ErrNotHost
	}
	if err := g.roster.SetJudges(judges); err != nil {
		return nil, err
	}
	return []model.Event{g.event(model.EventJudgesSet, caller)}, nil
}

// remove refunds before dropping the seat so a failed transfer leaves the
// participant in place with their balance.
func (g *Game) remove(ctx context.Context, caller, participant common.Address) ([]model.Event, error) {
	if g.roster.Locked() {
		return nil, ErrGameLocked
	}
	if caller != g.host && caller != participant {
		return nil, ErrNotHost
	}
	if !g.roster.IsPlayer(participant) {
		return nil, ErrNotAParticipant
	}

	receipt, err := g.ledger.Refund(ctx, participant)
	if err != nil {
		return nil, err
	}
	if err := g.roster.Remove(participant); err != nil {
		return nil, err
	}

	removed := g.event(model.EventRemoved, caller)
	removed.Subject = participant
	events := []model.Event{removed}
	if receipt.Amount.Sign() > 0 {
		events = append(events, g.moneyEvent(receipt, caller))
	}
	return events, nil
}

func (g *Game) report(caller common.Address, winners []common.Address) ([]model.Event, error) {
	if !g.roster.Locked() {
		return nil, ErrNotLocked
	}
	confirmed, err := g.tally.Report(caller, winners, g.roster)
	if err != nil {
		return nil, err
	}
	events := []model.Event{g.event(model.EventReported, caller)}
	if confirmed {
		events = append(events, g.event(model.EventConfirmed, caller))
	}
	return events, nil
}

// claim marks the claimant before paying and rolls the mark back if the
// transfer fails.
func (g *Game) claim(ctx context.Context, caller common.Address) (*big.Int, []model.Event, error) {
	winners := g.tally.Winners()
	if winners == nil {
		return nil, nil, ErrNotConfirmed
	}
	amount, err := payout.Authorize(caller, g.roster.IsPlayer(caller), winners, g.ledger.TotalPot(), g.splits, g.claims)
	if err != nil {
		return nil, nil, err
	}

	g.claims.Mark(caller)
	receipt, err := g.ledger.Payout(ctx, caller, amount)
	if err != nil {
		g.claims.Unmark(caller)
		return nil, nil, err
	}
	return amount, []model.Event{g.moneyEvent(receipt, caller)}, nil
}
