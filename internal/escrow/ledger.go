// Package escrow keeps the per-game books: who paid in, how large the pot
// is, and what has been refunded or paid out. It is the only place value
// moves, always through an asset.Transferer.
package escrow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wager-bot/internal/asset"
	"wager-bot/internal/pkg/errkind"
)

var (
	ErrAmountMismatch  = errkind.New(errkind.ErrValidation, "attached value does not match amount")
	ErrInvalidAmount   = errkind.New(errkind.ErrValidation, "amount must be positive")
	ErrTransferFailed  = errkind.New(errkind.ErrTransfer, "asset transfer failed")
	ErrInsufficientPot = errkind.New(errkind.ErrStateConflict, "pot cannot cover refund")
)

// Movement kinds recorded on receipts.
const (
	KindBuyIn  = "buy_in"
	KindPotAdd = "pot_add"
	KindRefund = "refund"
	KindPayout = "payout"
)

// Receipt describes one completed movement.
type Receipt struct {
	ID     uuid.UUID
	Kind   string
	Party  common.Address
	Asset  asset.Ref
	Amount *big.Int
}

// Totals summarises everything that went through a ledger.
type Totals struct {
	BuyIns   *big.Int
	PotAdds  *big.Int
	Refunded *big.Int
	PaidOut  *big.Int
}

// Held is what the ledger should still have in escrow.
func (t Totals) Held() *big.Int {
	held := new(big.Int).Add(t.BuyIns, t.PotAdds)
	held.Sub(held, t.Refunded)
	return held.Sub(held, t.PaidOut)
}

// Ledger is the escrow book of one game. It is not safe for concurrent use;
// callers serialize access per game.
type Ledger struct {
	asset      asset.Ref
	transferer asset.Transferer
	totalPot   *big.Int
	balances   map[common.Address]*big.Int
	totals     Totals
}

// NewLedger creates an empty ledger for ref.
func NewLedger(ref asset.Ref, transferer asset.Transferer) *Ledger {
	return &Ledger{
		asset:      ref,
		transferer: transferer,
		totalPot:   new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		totals: Totals{
			BuyIns:   new(big.Int),
			PotAdds:  new(big.Int),
			Refunded: new(big.Int),
			PaidOut:  new(big.Int),
		},
	}
}

// RestoreLedger rebuilds a ledger from persisted books. No value moves.
func RestoreLedger(ref asset.Ref, transferer asset.Transferer, pot *big.Int, balances map[common.Address]*big.Int, totals Totals) *Ledger {
	l := NewLedger(ref, transferer)
	l.totalPot.Set(pot)
	for who, bal := range balances {
		l.balances[who] = new(big.Int).Set(bal)
	}
	copyInto(l.totals.BuyIns, totals.BuyIns)
	copyInto(l.totals.PotAdds, totals.PotAdds)
	copyInto(l.totals.Refunded, totals.Refunded)
	copyInto(l.totals.PaidOut, totals.PaidOut)
	return l
}

func copyInto(dst, src *big.Int) {
	if src != nil {
		dst.Set(src)
	}
}

// Asset returns the asset the ledger escrows.
func (l *Ledger) Asset() asset.Ref { return l.asset }

// Deposit takes a buy-in from payer and credits it to the pot and to the
// payer's refundable balance.
func (l *Ledger) Deposit(ctx context.Context, payer common.Address, amount, attached *big.Int) (*Receipt, error) {
	if err := l.pull(ctx, payer, amount, attached); err != nil {
		return nil, err
	}

	bal := l.balance(payer)
	bal.Add(bal, amount)
	l.totalPot.Add(l.totalPot, amount)
	l.totals.BuyIns.Add(l.totals.BuyIns, amount)

	return l.receipt(KindBuyIn, payer, amount), nil
}

// AddToPot grows the pot without creating a refundable balance.
func (l *Ledger) AddToPot(ctx context.Context, payer common.Address, amount, attached *big.Int) (*Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := l.pull(ctx, payer, amount, attached); err != nil {
		return nil, err
	}

	l.totalPot.Add(l.totalPot, amount)
	l.totals.PotAdds.Add(l.totals.PotAdds, amount)

	return l.receipt(KindPotAdd, payer, amount), nil
}

// Refund returns exactly what participant deposited. A zero balance refunds
// nothing and moves nothing.
func (l *Ledger) Refund(ctx context.Context, participant common.Address) (*Receipt, error) {
	bal := l.balance(participant)
	if l.totalPot.Cmp(bal) < 0 {
		return nil, ErrInsufficientPot
	}
	amount := new(big.Int).Set(bal)
	if amount.Sign() == 0 {
		return l.receipt(KindRefund, participant, amount), nil
	}

	if err := l.transferer.Push(ctx, l.asset, participant, amount); err != nil {
		log.Warn().Err(err).Str("to", participant.Hex()).Str("amount", amount.String()).Msg("Refund transfer failed")
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	bal.SetInt64(0)
	l.totalPot.Sub(l.totalPot, amount)
	l.totals.Refunded.Add(l.totals.Refunded, amount)

	return l.receipt(KindRefund, participant, amount), nil
}

// Payout sends amount to winner. The pot is left untouched so every rank is
// computed against the same base.
func (l *Ledger) Payout(ctx context.Context, winner common.Address, amount *big.Int) (*Receipt, error) {
	if err := l.transferer.Push(ctx, l.asset, winner, amount); err != nil {
		log.Warn().Err(err).Str("to", winner.Hex()).Str("amount", amount.String()).Msg("Payout transfer failed")
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	l.totals.PaidOut.Add(l.totals.PaidOut, amount)
	return l.receipt(KindPayout, winner, amount), nil
}

// TotalPot returns a copy of the pot.
func (l *Ledger) TotalPot() *big.Int { return new(big.Int).Set(l.totalPot) }

// BalanceOf returns a copy of who's refundable balance.
func (l *Ledger) BalanceOf(who common.Address) *big.Int {
	if bal, ok := l.balances[who]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Balances returns copies of all non-zero balances.
func (l *Ledger) Balances() map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(l.balances))
	for who, bal := range l.balances {
		if bal.Sign() != 0 {
			out[who] = new(big.Int).Set(bal)
		}
	}
	return out
}

// Totals returns copies of the running totals.
func (l *Ledger) Totals() Totals {
	return Totals{
		BuyIns:   new(big.Int).Set(l.totals.BuyIns),
		PotAdds:  new(big.Int).Set(l.totals.PotAdds),
		Refunded: new(big.Int).Set(l.totals.Refunded),
		PaidOut:  new(big.Int).Set(l.totals.PaidOut),
	}
}

// pull checks the attached value against the asset kind, then moves amount
// into escrow. Nothing is booked if the transfer fails.
func (l *Ledger) pull(ctx context.Context, payer common.Address, amount, attached *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if attached == nil {
		attached = new(big.Int)
	}
	if l.asset.IsNative() {
		if attached.Cmp(amount) != 0 {
			return ErrAmountMismatch
		}
	} else if attached.Sign() != 0 {
		return ErrAmountMismatch
	}
	if amount.Sign() == 0 {
		return nil
	}

	if err := l.transferer.Pull(ctx, l.asset, payer, amount); err != nil {
		log.Warn().Err(err).Str("from", payer.Hex()).Str("amount", amount.String()).Msg("Escrow pull failed")
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func (l *Ledger) balance(who common.Address) *big.Int {
	bal, ok := l.balances[who]
	if !ok {
		bal = new(big.Int)
		l.balances[who] = bal
	}
	return bal
}

func (l *Ledger) receipt(kind string, party common.Address, amount *big.Int) *Receipt {
	return &Receipt{
		ID:     uuid.New(),
		Kind:   kind,
		Party:  party,
		Asset:  l.asset,
		Amount: new(big.Int).Set(amount),
	}
}
