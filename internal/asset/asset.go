// Package asset describes what a game escrows (the native coin or an
// allow-listed token) and the transfer capability that moves it.
package asset

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeName is the textual form of the native coin reference.
const NativeName = "native"

var (
	ErrInvalidRef        = errors.New("invalid asset reference")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientAllow = errors.New("insufficient allowance")
)

// Ref identifies an asset. The zero token address means the native coin.
type Ref struct {
	Token common.Address
}

// Native returns the native coin reference.
func Native() Ref { return Ref{} }

// Token returns a reference to the token at addr.
func Token(addr common.Address) Ref { return Ref{Token: addr} }

// IsNative reports whether r is the native coin.
func (r Ref) IsNative() bool { return r.Token == (common.Address{}) }

func (r Ref) String() string {
	if r.IsNative() {
		return NativeName
	}
	return r.Token.Hex()
}

// MarshalText implements encoding.TextMarshaler so refs work as JSON values and map keys.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Ref) UnmarshalText(text []byte) error {
	parsed, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRef parses "native" or a hex token address.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, NativeName) {
		return Native(), nil
	}
	if !common.IsHexAddress(s) {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Token(common.HexToAddress(s)), nil
}

// Transferer moves value between participants and the escrow. Calls are
// synchronous and all-or-nothing: a returned error means nothing moved.
type Transferer interface {
	// Pull moves amount from `from` into escrow. For the native coin this
	// settles value attached to the call; for tokens it is a transfer-from.
	Pull(ctx context.Context, ref Ref, from common.Address, amount *big.Int) error
	// Push moves amount from escrow to `to`.
	Push(ctx context.Context, ref Ref, to common.Address, amount *big.Int) error
}
