// Package matchmaking holds the waiting queue and the FIFO pairing policy:
// whenever the queue has two or more entries, the two oldest are popped as
// a pair. Ties are broken by insertion order, so outcomes are
// deterministic.
package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/registry"
	"github.com/victornm/quizduel/internal/store"
)

type Config struct {
	Store    store.Store
	Registry *registry.Registry
	EventBus *event.Bus
	Clock    clockwork.Clock
}

type Service struct {
	// mu serializes enqueue/dequeue/match so no two matches can consume
	// the same entry.
	mu      sync.Mutex
	members map[string]struct{}

	store    store.Store
	registry *registry.Registry
	eb       *event.Bus
	clock    clockwork.Clock
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	return &Service{
		members:  make(map[string]struct{}),
		store:    c.Store,
		registry: c.Registry,
		eb:       c.EventBus,
		clock:    c.Clock,
	}
}

// Enqueue appends the connection to the waiting queue and immediately
// checks for a match.
func (s *Service) Enqueue(ctx context.Context, connID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[connID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already queued: %s", connID))
	}

	// A connection belongs to at most one session; a playing connection
	// must finish or leave before it can wait for a new opponent.
	if c, ok := s.registry.Get(connID); ok && c.Role != domain.RoleIdle {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot queue while %s: %s", c.Role, connID))
	}

	e := domain.QueueEntry{
		ConnID:      connID,
		Name:        name,
		EnqueueTime: s.clock.Now(),
	}
	if err := s.store.PushQueue(ctx, e); err != nil {
		return fmt.Errorf("matchmaking: push queue: %w", err)
	}
	s.members[connID] = struct{}{}

	s.registry.SetName(connID, name)
	if err := s.registry.SetRole(connID, domain.RoleQueued, ""); err != nil {
		slog.WarnContext(ctx, "matchmaking: set role queued failed",
			"conn_id", connID,
			"error", err,
		)
	}

	s.tryMatch(ctx)
	return nil
}

// Dequeue removes the connection from the queue, typically because it
// disconnected while waiting. No-op when the connection is not queued.
func (s *Service) Dequeue(ctx context.Context, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[connID]; !ok {
		return
	}

	removed, err := s.store.RemoveQueue(ctx, connID)
	if err != nil {
		// The entry is still in the backing queue; keep the membership
		// record so the two never disagree about who is waiting.
		slog.WarnContext(ctx, "matchmaking: remove queue entry failed",
			"conn_id", connID,
			"error", err,
		)
		return
	}
	delete(s.members, connID)

	// The connection is usually gone (disconnect is the main caller), but
	// a still-live one goes back to idle so it may queue again.
	if _, ok := s.registry.Get(connID); ok {
		if err := s.registry.SetRole(connID, domain.RoleIdle, ""); err != nil {
			slog.WarnContext(ctx, "matchmaking: reset role failed",
				"conn_id", connID,
				"error", err,
			)
		}
	}

	if removed {
		s.tryMatch(ctx)
	}
}

// Len reports the number of waiting players, for health reporting.
func (s *Service) Len(ctx context.Context) (int, error) {
	return s.store.QueueLen(ctx)
}

// tryMatch pops pairs while at least two entries wait. Caller must hold
// s.mu.
func (s *Service) tryMatch(ctx context.Context) {
	for {
		a, b, ok, err := s.store.PopQueuePair(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "matchmaking: pop queue pair failed", "error", err)
			return
		}
		if !ok {
			return
		}

		delete(s.members, a.ConnID)
		delete(s.members, b.ConnID)

		slog.InfoContext(ctx, "matchmaking: matched pair",
			"player_a", a.ConnID,
			"player_b", b.ConnID,
		)

		s.eb.Publish(ctx, domain.EventPlayersMatched{
			PlayerA: a,
			PlayerB: b,
		})
	}
}
