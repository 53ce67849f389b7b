// Package game is the escrow-and-consensus engine: a registry of games keyed
// by short codes, each holding pooled buy-ins until a quorum of voters
// agrees on the winners.
package game

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"wager-bot/internal/asset"
	"wager-bot/internal/codegen"
	"wager-bot/internal/escrow"
	"wager-bot/internal/game/consensus"
	"wager-bot/internal/game/payout"
	"wager-bot/internal/game/roster"
	"wager-bot/internal/model"
	"wager-bot/internal/pkg/lock"
)

// DefaultLockTimeout bounds how long a call waits for a busy game.
const DefaultLockTimeout = 5 * time.Second

// Observer is told about every successful change, in order per game, while
// the game is still held. rec is shared and must not be modified.
type Observer interface {
	Observe(ctx context.Context, ev model.Event, rec *model.GameRecord) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev model.Event, rec *model.GameRecord) error

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, ev model.Event, rec *model.GameRecord) error {
	return f(ctx, ev, rec)
}

// CreateRequest describes a new game.
type CreateRequest struct {
	BuyIn      *big.Int
	Asset      asset.Ref
	MaxPlayers int
	Judges     []common.Address
}

// Registry owns all games.
type Registry struct {
	games       sync.Map // map[string]*Game
	locks       *lock.KeyLock[string]
	codes       *codegen.Generator
	allowList   *asset.AllowList
	transferer  asset.Transferer
	observers   []Observer
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver adds an observer. Observers run in registration order.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observers = append(r.observers, o) }
}

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.lockTimeout = d
		}
	}
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(codes *codegen.Generator, allowList *asset.AllowList, transferer asset.Transferer, opts ...Option) *Registry {
	r := &Registry{
		locks:       lock.NewKeyLock[string](),
		codes:       codes,
		allowList:   allowList,
		transferer:  transferer,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a new game hosted by host and returns its code.
func (r *Registry) Create(ctx context.Context, host common.Address, req CreateRequest) (string, error) {
	buyIn := req.BuyIn
	if buyIn == nil {
		buyIn = new(big.Int)
	}
	if buyIn.Sign() < 0 {
		return "", ErrInvalidAmount
	}
	if !r.allowList.IsAllowed(req.Asset) {
		return "", ErrAssetNotAllowed
	}
	members, err := roster.New(req.MaxPlayers, req.Judges)
	if err != nil {
		return "", err
	}

	code, err := r.codes.Generate(ctx, host)
	if err != nil {
		return "", err
	}

	g := newGame(code, host, buyIn, members, escrow.NewLedger(req.Asset, r.transferer), r.now())
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	if _, loaded := r.games.LoadOrStore(code, g); loaded {
		// The code store guarantees uniqueness; a clash means two registries
		// share one store without sharing games.
		return "", fmt.Errorf("game code %s already registered", code)
	}
	rec := g.publish(r.now())

	log.Info().
		Str("code", code).
		Str("host", host.Hex()).
		Str("asset", req.Asset.String()).
		Str("buy_in", buyIn.String()).
		Int("max_players", req.MaxPlayers).
		Int("judges", len(rec.Roster.Judges)).
		Msg("Game created")

	r.notify(ctx, []model.Event{g.event(model.EventCreated, host)}, rec)
	return code, nil
}

// Join takes payer's buy-in and seats them. attached is the native value sent
// with the call and must equal the buy-in for native games and be zero for
// token games.
func (r *Registry) Join(ctx context.Context, code string, payer common.Address, attached *big.Int) error {
	return r.mutate(ctx, code, "join", func(g *Game) ([]model.Event, error) {
		return g.join(ctx, payer, attached)
	})
}

// AddToPot grows the pot of code by amount. Allowed until the winners are
// confirmed, including after lock.
func (r *Registry) AddToPot(ctx context.Context, code string, payer common.Address, amount, attached *big.Int) error {
	return r.mutate(ctx, code, "add_to_pot", func(g *Game) ([]model.Event, error) {
		return g.addToPot(ctx, payer, amount, attached)
	})
}

// Lock freezes membership. Host only.
func (r *Registry) Lock(ctx context.Context, code string, caller common.Address) error {
	return r.mutate(ctx, code, "lock", func(g *Game) ([]model.Event, error) {
		return g.lock(caller)
	})
}

// SetPrizeSplits sets per-rank shares in thousandths. Host only, before lock.
func (r *Registry) SetPrizeSplits(ctx context.Context, code string, caller common.Address, splits []uint16) error {
	return r.mutate(ctx, code, "set_splits", func(g *Game) ([]model.Event, error) {
		return g.setSplits(caller, splits)
	})
}

// SetJudges replaces the judge list. Host only, before lock.
func (r *Registry) SetJudges(ctx context.Context, code string, caller common.Address, judges []common.Address) error {
	return r.mutate(ctx, code, "set_judges", func(g *Game) ([]model.Event, error) {
		return g.setJudges(caller, judges)
	})
}

// Remove refunds and unseats participant. The host may remove anyone; others
// only themselves.
func (r *Registry) Remove(ctx context.Context, code string, caller, participant common.Address) error {
	return r.mutate(ctx, code, "remove", func(g *Game) ([]model.Event, error) {
		return g.remove(ctx, caller, participant)
	})
}

// Report records caller's ranking of winners, best first.
func (r *Registry) Report(ctx context.Context, code string, caller common.Address, winners []common.Address) error {
	return r.mutate(ctx, code, "report", func(g *Game) ([]model.Event, error) {
		return g.report(caller, winners)
	})
}

// Claim pays caller their prize and returns the amount.
func (r *Registry) Claim(ctx context.Context, code string, caller common.Address) (*big.Int, error) {
	var paid *big.Int
	err := r.mutate(ctx, code, "claim", func(g *Game) ([]model.Event, error) {
		amount, events, err := g.claim(ctx, caller)
		paid = amount
		return events, err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Restore registers a game from a persisted record, reserving its code. No
// observers run and no value moves.
func (r *Registry) Restore(ctx context.Context, rec *model.GameRecord) error {
	if err := codegen.Validate(rec.Code); err != nil {
		return err
	}
	if rec.BuyIn == nil || rec.Pot == nil {
		return fmt.Errorf("game record %s is incomplete", rec.Code)
	}
	if _, err := r.codes.Reserve(ctx, rec.Code); err != nil {
		return err
	}

	g := restoreGame(rec, r.transferer)
	if _, loaded := r.games.LoadOrStore(rec.Code, g); loaded {
		return fmt.Errorf("game code %s already registered", rec.Code)
	}
	g.published.Store(g.record(rec.UpdatedAt))
	return nil
}

// GameInfo returns the latest record of code. The record is shared and must
// not be modified.
func (r *Registry) GameInfo(code string) (*model.GameRecord, error) {
	g, err := r.lookup(code)
	if err != nil {
		return nil, err
	}
	return g.snapshot(), nil
}

// Players returns the current players of code.
func (r *Registry) Players(code string) ([]common.Address, error) {
	rec, err := r.GameInfo(code)
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), rec.Roster.Players...), nil
}

// Judges returns the judges of code.
func (r *Registry) Judges(code string) ([]common.Address, error) {
	rec, err := r.GameInfo(code)
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), rec.Roster.Judges...), nil
}

// ConfirmedWinners returns the agreed ranking, empty while voting is open.
func (r *Registry) ConfirmedWinners(code string) ([]common.Address, error) {
	rec, err := r.GameInfo(code)
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), rec.Consensus.Winners...), nil
}

// IsWinnerConfirmed reports whether id is in the confirmed ranking.
func (r *Registry) IsWinnerConfirmed(code string, id common.Address) (bool, error) {
	winners, err := r.ConfirmedWinners(code)
	if err != nil {
		return false, err
	}
	return payout.Rank(id, winners) > 0, nil
}

// Support returns how many voters currently back winners in code.
func (r *Registry) Support(code string, winners []common.Address) (int, error) {
	rec, err := r.GameInfo(code)
	if err != nil {
		return 0, err
	}
	return rec.Consensus.Support[consensus.HashReport(winners)], nil
}

// IsCodeAvailable reports whether code is well formed and unused.
func (r *Registry) IsCodeAvailable(ctx context.Context, code string) (bool, error) {
	return r.codes.IsAvailable(ctx, code)
}

// IsAssetAllowed reports whether games may be created in ref.
func (r *Registry) IsAssetAllowed(ref asset.Ref) bool {
	return r.allowList.IsAllowed(ref)
}

// Codes lists every registered code in sorted order.
func (r *Registry) Codes() []string {
	var codes []string
	r.games.Range(func(k, _ any) bool {
		codes = append(codes, k.(string))
		return true
	})
	sort.Strings(codes)
	return codes
}

func (r *Registry) lookup(code string) (*Game, error) {
	if err := codegen.Validate(code); err != nil {
		return nil, err
	}
	v, ok := r.games.Load(code)
	if !ok {
		return nil, ErrNoSuchGame
	}
	return v.(*Game), nil
}

// mutate runs fn with code held, publishes the new record and notifies
// observers. Nothing is published when fn fails.
func (r *Registry) mutate(ctx context.Context, code, op string, fn func(g *Game) ([]model.Event, error)) error {
	g, err := r.lookup(code)
	if err != nil {
		return err
	}

	return r.locks.WithLockContext(ctx, code, r.lockTimeout, func() error {
		events, err := fn(g)
		if err != nil {
			log.Debug().Err(err).Str("code", code).Str("op", op).Msg("Game operation rejected")
			return err
		}

		rec := g.publish(r.now())
		for _, ev := range events {
			logEvent := log.Info().Str("code", code).Str("event", ev.Kind).Str("actor", ev.Actor.Hex())
			if ev.Amount != nil {
				logEvent = logEvent.Str("amount", ev.Amount.String())
			}
			if ev.Kind == model.EventConfirmed {
				logEvent = logEvent.Int("winners", len(rec.Consensus.Winners))
			}
			logEvent.Msg("Game updated")
		}
		r.notify(ctx, events, rec)
		return nil
	})
}

func (r *Registry) notify(ctx context.Context, events []model.Event, rec *model.GameRecord) {
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = rec.UpdatedAt
		}
		for _, o := range r.observers {
			if err := o.Observe(ctx, ev, rec); err != nil {
				log.Error().Err(err).Str("code", ev.Code).Str("event", ev.Kind).Msg("Observer failed")
			}
		}
	}
}
