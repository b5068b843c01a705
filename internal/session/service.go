// Package session owns the table of active sessions. Mutations are
// serialized per session identifier so concurrent score updates and the
// question advance never lose writes, while unrelated sessions stay fully
// independent.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/registry"
	"github.com/victornm/quizduel/internal/store"
)

type Config struct {
	Registry *registry.Registry
	Store    store.Store
}

type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	registry *registry.Registry
	store    store.Store
}

// entry pairs a session with its own mutex. ended flips once when the
// session is removed so a mutator holding a stale pointer fails cleanly.
type entry struct {
	mu    sync.Mutex
	sess  *domain.Session
	ended bool
}

func NewService(c Config) *Service {
	return &Service{
		sessions: make(map[string]*entry),
		registry: c.Registry,
		store:    c.Store,
	}
}

// Create builds a session for a matched pair, in state awaiting-signal
// with zero scores, and marks both connections as in-session.
func (s *Service) Create(ctx context.Context, a, b domain.QueueEntry, totalQuestions int) (domain.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: generate id: %w", err)
	}

	sess := &domain.Session{
		SessionID: id.String(),
		Players: [2]domain.Player{
			{ConnID: a.ConnID, Name: a.Name},
			{ConnID: b.ConnID, Name: b.Name},
		},
		State:          domain.StateAwaitingSignal,
		TotalQuestions: totalQuestions,
	}

	s.mu.Lock()
	s.sessions[sess.SessionID] = &entry{sess: sess}
	s.mu.Unlock()

	for _, p := range sess.Players {
		if err := s.registry.SetRole(p.ConnID, domain.RoleInSession, sess.SessionID); err != nil {
			slog.WarnContext(ctx, "session: set role in-session failed",
				"conn_id", p.ConnID,
				"session_id", sess.SessionID,
				"error", err,
			)
		}
	}

	s.snapshot(ctx, *sess)

	slog.InfoContext(ctx, "session: created",
		"session_id", sess.SessionID,
		"player_a", a.ConnID,
		"player_b", b.ConnID,
	)

	return *sess, nil
}

// Get returns a copy of the session.
func (s *Service) Get(ctx context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, notFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return domain.Session{}, notFound(id)
	}

	return *e.sess, nil
}

// Update runs the mutator under the session's lock and returns the
// resulting copy. The mutator's error aborts the update and is returned
// unchanged.
func (s *Service) Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, notFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return domain.Session{}, notFound(id)
	}

	// Mutate a copy and commit only on success, so a rejected mutation
	// (stale round, unknown player) leaves the session untouched.
	work := *e.sess
	work.IssuedQuestionIDs = append([]string(nil), e.sess.IssuedQuestionIDs...)
	if err := fn(&work); err != nil {
		return domain.Session{}, err
	}
	*e.sess = work

	out := work
	s.snapshot(ctx, out)
	return out, nil
}

// End removes the session and releases both connections back to idle.
// Returns the final state of the session. Safe to call while a round is in
// flight: it waits for the session lock, so teardown never races a
// mutation. A second End is a NotFound no-op; ended sessions are never
// resurrected.
func (s *Service) End(ctx context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, notFound(id)
	}

	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return domain.Session{}, notFound(id)
	}
	e.ended = true
	e.sess.State = domain.StateEnded
	out := *e.sess
	e.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	for _, p := range out.Players {
		// The player may already be unregistered when teardown was
		// caused by its disconnect.
		if _, ok := s.registry.Get(p.ConnID); ok {
			if err := s.registry.SetRole(p.ConnID, domain.RoleIdle, ""); err != nil {
				slog.WarnContext(ctx, "session: reset role failed",
					"conn_id", p.ConnID,
					"error", err,
				)
			}
		}
	}

	if err := s.store.DeleteSession(ctx, id); err != nil {
		slog.WarnContext(ctx, "session: delete snapshot failed",
			"session_id", id,
			"error", err,
		)
	}

	slog.InfoContext(ctx, "session: ended", "session_id", id)
	return out, nil
}

// ActiveCount reports the number of live sessions, for metrics.
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// snapshot mirrors the session to the store backend. Best effort: the
// in-memory table is authoritative.
func (s *Service) snapshot(ctx context.Context, sess domain.Session) {
	if err := s.store.SaveSession(ctx, sess); err != nil {
		slog.WarnContext(ctx, "session: save snapshot failed",
			"session_id", sess.SessionID,
			"error", err,
		)
	}
}

func notFound(id string) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("session not found: %s", id))
}
