// Package registry tracks every live client connection and its current
// role. Disconnect is the only implicit state transition in the system, so
// Unregister owns the exactly-once cleanup dispatch into the queue and the
// game.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
)

// Cleanup holds the hooks invoked when a connection goes away. Wired once
// at startup; both hooks must tolerate any connection state.
type Cleanup struct {
	// Dequeue removes the connection from the waiting queue.
	Dequeue func(ctx context.Context, connID string)
	// LeaveSession tears down the session the connection was playing in.
	LeaveSession func(ctx context.Context, connID, sessionID string)
}

type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*domain.Connection
	cleanup Cleanup
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]*domain.Connection),
	}
}

// SetCleanup installs the disconnect hooks. Must be called before the
// first connection registers.
func (r *Registry) SetCleanup(c Cleanup) {
	r.cleanup = c
}

func (r *Registry) Register(connID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("connection already registered: %s", connID))
	}

	r.conns[connID] = &domain.Connection{
		ConnID: connID,
		Name:   name,
		Role:   domain.RoleIdle,
	}
	return nil
}

// SetRole updates the connection's role. sessionID is only meaningful for
// RoleInSession and cleared otherwise.
func (r *Registry) SetRole(connID string, role domain.Role, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("connection not registered: %s", connID))
	}

	c.Role = role
	if role == domain.RoleInSession {
		c.SessionID = sessionID
	} else {
		c.SessionID = ""
	}
	return nil
}

// SetName records the display name a connection introduced itself with.
func (r *Registry) SetName(connID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connID]; ok {
		c.Name = name
	}
}

func (r *Registry) Get(connID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return domain.Connection{}, false
	}
	return *c, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Unregister removes the connection and dispatches the cleanup hook that
// matches its last role. Idempotent: the entry is removed under the lock,
// so even if the transport fires its close event twice the cleanup runs
// exactly once.
func (r *Registry) Unregister(ctx context.Context, connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	last := *c
	delete(r.conns, connID)
	r.mu.Unlock()

	switch last.Role {
	case domain.RoleQueued:
		if r.cleanup.Dequeue != nil {
			r.cleanup.Dequeue(ctx, connID)
		}
	case domain.RoleInSession:
		if r.cleanup.LeaveSession != nil {
			r.cleanup.LeaveSession(ctx, connID, last.SessionID)
		}
	}

	slog.InfoContext(ctx, "registry: connection unregistered",
		"conn_id", connID,
		"role", string(last.Role),
	)
}
