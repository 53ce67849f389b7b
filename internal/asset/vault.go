package asset

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Direction of a vault movement, passed to failure hooks.
const (
	DirectionPull = "pull"
	DirectionPush = "push"
)

// FailureHook lets callers make selected movements fail, modelling a
// recipient that rejects value or a token that reverts.
type FailureHook func(direction string, ref Ref, party common.Address, amount *big.Int) error

// Vault is an in-memory Transferer. It tracks participant balances, token
// allowances granted to the escrow, and what the escrow currently holds.
type Vault struct {
	mu         sync.Mutex
	balances   map[Ref]map[common.Address]*big.Int
	allowances map[Ref]map[common.Address]*big.Int
	held       map[Ref]*big.Int
	hook       FailureHook
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		balances:   make(map[Ref]map[common.Address]*big.Int),
		allowances: make(map[Ref]map[common.Address]*big.Int),
		held:       make(map[Ref]*big.Int),
	}
}

// SetFailureHook installs hook; nil removes it.
func (v *Vault) SetFailureHook(hook FailureHook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hook = hook
}

// Mint credits amount of ref to who.
func (v *Vault) Mint(ref Ref, who common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal := v.slot(v.balances, ref, who)
	bal.Add(bal, amount)
}

// Approve sets the allowance owner grants the escrow for a token.
func (v *Vault) Approve(ref Ref, owner common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slot(v.allowances, ref, owner).Set(amount)
}

// IncreaseAllowance grows the allowance owner grants the escrow by amount.
func (v *Vault) IncreaseAllowance(ref Ref, owner common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	allowance := v.slot(v.allowances, ref, owner)
	allowance.Add(allowance, amount)
}

// DecreaseAllowance shrinks the allowance owner grants the escrow by
// amount, stopping at zero.
func (v *Vault) DecreaseAllowance(ref Ref, owner common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	allowance := v.slot(v.allowances, ref, owner)
	allowance.Sub(allowance, amount)
	if allowance.Sign() < 0 {
		allowance.SetInt64(0)
	}
}

// Allowance returns what the escrow may still pull of ref from owner.
func (v *Vault) Allowance(ref Ref, owner common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.slot(v.allowances, ref, owner))
}

// BalanceOf returns who's balance of ref.
func (v *Vault) BalanceOf(ref Ref, who common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.slot(v.balances, ref, who))
}

// Held returns what the escrow holds of ref.
func (v *Vault) Held(ref Ref) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.heldOf(ref))
}

// TotalSupply is the sum of all balances plus escrow holdings of ref. It
// never changes through Pull or Push.
func (v *Vault) TotalSupply(ref Ref) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := new(big.Int).Set(v.heldOf(ref))
	for _, bal := range v.balances[ref] {
		total.Add(total, bal)
	}
	return total
}

// Pull implements Transferer.
func (v *Vault) Pull(_ context.Context, ref Ref, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.hook != nil {
		if err := v.hook(DirectionPull, ref, from, amount); err != nil {
			return err
		}
	}

	bal := v.slot(v.balances, ref, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), bal, amount)
	}
	if !ref.IsNative() {
		allowance := v.slot(v.allowances, ref, from)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s approved %s, needs %s", ErrInsufficientAllow, from.Hex(), allowance, amount)
		}
		allowance.Sub(allowance, amount)
	}

	bal.Sub(bal, amount)
	held := v.heldOf(ref)
	held.Add(held, amount)
	return nil
}

// Push implements Transferer.
func (v *Vault) Push(_ context.Context, ref Ref, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.hook != nil {
		if err := v.hook(DirectionPush, ref, to, amount); err != nil {
			return err
		}
	}

	held := v.heldOf(ref)
	if held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: escrow holds %s, needs %s", ErrInsufficientFunds, held, amount)
	}
	held.Sub(held, amount)
	bal := v.slot(v.balances, ref, to)
	bal.Add(bal, amount)
	return nil
}

func (v *Vault) slot(m map[Ref]map[common.Address]*big.Int, ref Ref, who common.Address) *big.Int {
	byOwner, ok := m[ref]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		m[ref] = byOwner
	}
	bal, ok := byOwner[who]
	if !ok {
		bal = new(big.Int)
		byOwner[who] = bal
	}
	return bal
}

func (v *Vault) heldOf(ref Ref) *big.Int {
	held, ok := v.held[ref]
	if !ok {
		held = new(big.Int)
		v.held[ref] = held
	}
	return held
}
