// Package store provides the pluggable backend for queue and session
// data. The in-memory implementation is the default; the redis one allows
// several instances to share the waiting queue and session snapshots.
package store

import (
	"context"

	"github.com/victornm/quizduel/internal/domain"
)

type Store interface {
	// PushQueue appends an entry to the tail of the waiting queue.
	PushQueue(ctx context.Context, e domain.QueueEntry) error

	// PopQueuePair atomically removes and returns the two oldest entries.
	// ok is false when the queue holds fewer than two entries, in which
	// case nothing is removed.
	PopQueuePair(ctx context.Context) (a, b domain.QueueEntry, ok bool, err error)

	// RemoveQueue removes the entry for connID wherever it sits in the
	// queue. Returns false when no such entry exists.
	RemoveQueue(ctx context.Context, connID string) (bool, error)

	QueueLen(ctx context.Context) (int, error)

	// SaveSession stores a snapshot of the session, overwriting any
	// previous one.
	SaveSession(ctx context.Context, s domain.Session) error

	GetSession(ctx context.Context, id string) (domain.Session, bool, error)

	DeleteSession(ctx context.Context, id string) error
}
