package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"wager-bot/internal/model"
)

// EventStore appends journal lines.
type EventStore interface {
	Create(ctx context.Context, ev model.Event) error
}

// GameStore persists game records.
type GameStore interface {
	Save(ctx context.Context, rec *model.GameRecord) error
}

// Journal is a game.Observer writing every event to an EventStore.
type Journal struct {
	events EventStore
}

// NewJournal creates a new Journal.
func NewJournal(events EventStore) *Journal {
	return &Journal{events: events}
}

// Observe implements game.Observer.
func (j *Journal) Observe(ctx context.Context, ev model.Event, _ *model.GameRecord) error {
	return j.events.Create(ctx, ev)
}

// Persister is a game.Observer saving the record after every change so games
// survive a restart. A batch of events shares one record, so it is written
// once; a failed write is retried by the next event of the batch.
type Persister struct {
	games   GameStore
	backOff func() backoff.BackOff

	mu    sync.Mutex
	saved map[string]*model.GameRecord
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithSaveBackOff sets the retry policy for one save.
func WithSaveBackOff(newBackOff func() backoff.BackOff) PersisterOption {
	return func(p *Persister) {
		p.backOff = newBackOff
	}
}

func defaultSaveBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

// NewPersister creates a new Persister.
func NewPersister(games GameStore, opts ...PersisterOption) *Persister {
	p := &Persister{
		games:   games,
		backOff: defaultSaveBackOff,
		saved:   make(map[string]*model.GameRecord),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Observe implements game.Observer. Only the newest saved record per game
// is remembered, which the registry holds anyway.
func (p *Persister) Observe(ctx context.Context, ev model.Event, rec *model.GameRecord) error {
	p.mu.Lock()
	done := p.saved[rec.Code] == rec
	p.mu.Unlock()
	if done {
		return nil
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := p.games.Save(ctx, rec)
		if err != nil {
			log.Warn().Err(err).Str("code", rec.Code).Str("event", ev.Kind).Int("attempt", attempt).Msg("Failed to save game")
		}
		return err
	}, backoff.WithContext(p.backOff(), ctx))
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", rec.Code, err)
	}

	p.mu.Lock()
	p.saved[rec.Code] = rec
	p.mu.Unlock()
	return nil
}
