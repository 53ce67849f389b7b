// Package model defines the records shared by the engine, the repositories
// and the chat surface.
package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"wager-bot/internal/asset"
	"wager-bot/internal/escrow"
	"wager-bot/internal/game/consensus"
	"wager-bot/internal/game/roster"
)

// User maps a Telegram account onto an engine identity.
type User struct {
	TelegramID int64          `db:"telegram_id"`
	Username   string         `db:"username"`
	Address    common.Address `db:"address"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// Event kinds emitted by the registry and stored in the journal.
const (
	EventCreated   = "created"
	EventJoined    = "joined"
	EventBuyIn     = escrow.KindBuyIn
	EventPotAdd    = escrow.KindPotAdd
	EventSplitsSet = "splits_set"
	EventJudgesSet = "judges_set"
	EventLocked    = "locked"
	EventRemoved   = "removed"
	EventRefund    = escrow.KindRefund
	EventReported  = "reported"
	EventConfirmed = "confirmed"
	EventPayout    = escrow.KindPayout
)

// MoneyEvents are the kinds that carry an amount.
func MoneyEvents() []string {
	return []string{EventBuyIn, EventPotAdd, EventRefund, EventPayout}
}

// Event is one journal line: something happened to a game.
type Event struct {
	ID      uuid.UUID      `db:"id"`
	Code    string         `db:"game_code"`
	Kind    string         `db:"kind"`
	Actor   common.Address `db:"actor"`
	Subject common.Address `db:"subject"`
	Asset   asset.Ref      `db:"asset"`
	Amount  *big.Int       `db:"amount"`
	At      time.Time      `db:"created_at"`
}

// GameRecord is the full state of one game, published after every change and
// persisted for audit and restart.
type GameRecord struct {
	Code      string                      `json:"code"`
	Host      common.Address              `json:"host"`
	Asset     asset.Ref                   `json:"asset"`
	BuyIn     *big.Int                    `json:"buy_in"`
	Splits    []uint16                    `json:"splits"`
	Roster    roster.State                `json:"roster"`
	Pot       *big.Int                    `json:"pot"`
	Balances  map[common.Address]*big.Int `json:"balances"`
	Totals    escrow.Totals               `json:"totals"`
	Consensus consensus.State             `json:"consensus"`
	Claimed   []common.Address            `json:"claimed"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Confirmed reports whether the winners are settled.
func (r *GameRecord) Confirmed() bool { return r.Consensus.Confirmed }

// Voters is the size of the electorate: the judges when there are any,
// otherwise the players.
func (r *GameRecord) Voters() int {
	if len(r.Roster.Judges) > 0 {
		return len(r.Roster.Judges)
	}
	return len(r.Roster.Players)
}

// Game lifecycle labels.
const (
	StatusOpen      = "open"
	StatusLocked    = "locked"
	StatusConfirmed = "confirmed"
)

// Status is a one-word lifecycle label for display.
func (r *GameRecord) Status() string {
	switch {
	case r.Consensus.Confirmed:
		return StatusConfirmed
	case r.Roster.Locked:
		return StatusLocked
	default:
		return StatusOpen
	}
}

// Wallet is a house-ledger balance of one asset.
type Wallet struct {
	Address   common.Address `db:"address"`
	Asset     asset.Ref      `db:"asset"`
	Balance   *big.Int       `db:"balance"`
	UpdatedAt time.Time      `db:"updated_at"`
}
