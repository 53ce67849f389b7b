// Package codegen issues the short human-typeable codes that key games.
package codegen

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"wager-bot/internal/pkg/errkind"
)

const (
	// Alphabet is the symbol set codes are drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Separator splits the two halves of a code.
	Separator = '-'
	// Length is the total code length including the separator.
	Length = 7
	// SeparatorIndex is the fixed position of the separator.
	SeparatorIndex = 3
	// DefaultAttempts bounds retries on collision.
	DefaultAttempts = 10
)

var (
	ErrMalformedCode     = errkind.New(errkind.ErrValidation, "malformed game code")
	ErrExhaustedAttempts = errkind.New(errkind.ErrStateConflict, "could not find a free game code")
)

// Store reserves codes. Reserve must check and reserve in one atomic step,
// returning false if the code was already taken.
type Store interface {
	Reserve(ctx context.Context, code string) (bool, error)
	IsReserved(ctx context.Context, code string) (bool, error)
}

// Generator produces unique codes backed by a Store.
type Generator struct {
	store    Store
	attempts int
	counter  atomic.Uint64
	now      func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithAttempts overrides the retry bound.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithClock overrides the time source mixed into the seed.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a Generator.
func New(store Store, opts ...Option) *Generator {
	g := &Generator{
		store:    store,
		attempts: DefaultAttempts,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate reserves and returns a fresh code for caller.
func (g *Generator) Generate(ctx context.Context, caller common.Address) (string, error) {
	for attempt := 1; attempt <= g.attempts; attempt++ {
		code := Derive(g.counter.Add(1), caller, g.now().UnixNano())

		ok, err := g.store.Reserve(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to reserve game code: %w", err)
		}
		if ok {
			return code, nil
		}
		log.Debug().Str("code", code).Int("attempt", attempt).Msg("Game code collision")
	}
	return "", ErrExhaustedAttempts
}

// IsAvailable reports whether code is well formed and not yet reserved.
func (g *Generator) IsAvailable(ctx context.Context, code string) (bool, error) {
	if Validate(code) != nil {
		return false, nil
	}
	taken, err := g.store.IsReserved(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to check game code: %w", err)
	}
	return !taken, nil
}

// Reserve claims a known code, for games restored from storage. It reports
// whether the code was newly reserved.
func (g *Generator) Reserve(ctx context.Context, code string) (bool, error) {
	if err := Validate(code); err != nil {
		return false, err
	}
	ok, err := g.store.Reserve(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to reserve game code: %w", err)
	}
	return ok, nil
}

// Derive maps a seed tuple onto a code. Same inputs give the same code.
func Derive(counter uint64, caller common.Address, nanos int64) string {
	var seed [8 + common.AddressLength + 8]byte
	binary.BigEndian.PutUint64(seed[:8], counter)
	copy(seed[8:], caller.Bytes())
	binary.BigEndian.PutUint64(seed[8+common.AddressLength:], uint64(nanos))
	digest := crypto.Keccak256(seed[:])

	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length-1; i++ {
		if i == SeparatorIndex {
			b.WriteByte(Separator)
		}
		b.WriteByte(Alphabet[int(digest[i])%len(Alphabet)])
	}
	return b.String()
}

// Validate checks the shape of code.
func Validate(code string) error {
	if len(code) != Length || strings.Count(code, string(Separator)) != 1 || code[SeparatorIndex] != Separator {
		return ErrMalformedCode
	}
	for i := 0; i < len(code); i++ {
		if i == SeparatorIndex {
			continue
		}
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return ErrMalformedCode
		}
	}
	return nil
}

// Normalize trims and upper-cases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
