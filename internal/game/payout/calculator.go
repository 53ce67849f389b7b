// Package payout computes what each confirmed winner may claim and keeps
// the one-shot claim record.
package payout

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"wager-bot/internal/pkg/errkind"
)

const (
	// SplitDenominator is the base of split shares: 1000 means the whole pot.
	SplitDenominator = 1000
	// MaxRanks is the number of ranks that can carry a prize.
	MaxRanks = 3
)

var (
	ErrInvalidSplitSum = errkind.New(errkind.ErrValidation, "prize splits must be at most 3 entries summing to 1000")
	ErrNotAWinner      = errkind.New(errkind.ErrAuthorization, "not a confirmed winner")
	ErrNoPrizeForRank  = errkind.New(errkind.ErrValidation, "no prize for this rank")
	ErrAlreadyClaimed  = errkind.New(errkind.ErrStateConflict, "prize already claimed")
)

// ValidateSplits accepts an empty list (winner takes all) or up to three
// shares summing to SplitDenominator.
func ValidateSplits(splits []uint16) error {
	if len(splits) > MaxRanks {
		return ErrInvalidSplitSum
	}
	if len(splits) == 0 {
		return nil
	}
	sum := 0
	for _, s := range splits {
		sum += int(s)
	}
	if sum != SplitDenominator {
		return ErrInvalidSplitSum
	}
	return nil
}

// Entitlement returns the prize for a 1-based rank. Division truncates; the
// remainder stays in escrow.
func Entitlement(rank int, pot *big.Int, splits []uint16) *big.Int {
	if rank < 1 || rank > MaxRanks {
		return new(big.Int)
	}
	if len(splits) == 0 {
		if rank == 1 {
			return new(big.Int).Set(pot)
		}
		return new(big.Int)
	}
	if rank > len(splits) {
		return new(big.Int)
	}
	share := new(big.Int).Mul(pot, big.NewInt(int64(splits[rank-1])))
	return share.Quo(share, big.NewInt(SplitDenominator))
}

// Rank returns the 1-based position of id in winners, or 0.
func Rank(id common.Address, winners []common.Address) int {
	for i, w := range winners {
		if w == id {
			return i + 1
		}
	}
	return 0
}

// Authorize decides what claimant may be paid. isPlayer must say whether the
// claimant holds a player seat in the game.
func Authorize(claimant common.Address, isPlayer bool, winners []common.Address, pot *big.Int, splits []uint16, claims *Claims) (*big.Int, error) {
	rank := Rank(claimant, winners)
	if !isPlayer || rank == 0 {
		return nil, ErrNotAWinner
	}
	if claims.Has(claimant) {
		return nil, ErrAlreadyClaimed
	}
	amount := Entitlement(rank, pot, splits)
	if amount.Sign() == 0 {
		return nil, ErrNoPrizeForRank
	}
	return amount, nil
}

// Claims is the monotonic set of winners who have been paid.
type Claims struct {
	claimed map[common.Address]struct{}
	order   []common.Address
}

// NewClaims creates an empty claim set.
func NewClaims(already ...common.Address) *Claims {
	c := &Claims{claimed: make(map[common.Address]struct{})}
	for _, id := range already {
		c.Mark(id)
	}
	return c
}

// Mark records id as claimed. It returns false if id already was.
func (c *Claims) Mark(id common.Address) bool {
	if _, ok := c.claimed[id]; ok {
		return false
	}
	c.claimed[id] = struct{}{}
	c.order = append(c.order, id)
	return true
}

// Unmark rolls back a Mark whose payout failed.
func (c *Claims) Unmark(id common.Address) {
	if _, ok := c.claimed[id]; !ok {
		return
	}
	delete(c.claimed, id)
	for i, w := range c.order {
		if w == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Has reports whether id has claimed.
func (c *Claims) Has(id common.Address) bool {
	_, ok := c.claimed[id]
	return ok
}

// List returns claimants in claim order.
func (c *Claims) List() []common.Address {
	return append([]common.Address(nil), c.order...)
}
