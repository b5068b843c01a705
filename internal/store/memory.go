package store

import (
	"context"
	"sync"

	"github.com/victornm/quizduel/internal/domain"
)

// Memory is the in-process Store. All methods are safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	queue    []domain.QueueEntry
	sessions map[string]domain.Session
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]domain.Session),
	}
}

func (m *Memory) PushQueue(_ context.Context, e domain.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, e)
	return nil
}

func (m *Memory) PopQueuePair(_ context.Context) (domain.QueueEntry, domain.QueueEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) < 2 {
		return domain.QueueEntry{}, domain.QueueEntry{}, false, nil
	}

	a, b := m.queue[0], m.queue[1]
	m.queue = append([]domain.QueueEntry(nil), m.queue[2:]...)
	return a, b, true, nil
}

func (m *Memory) RemoveQueue(_ context.Context, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.queue {
		if e.ConnID == connID {
			m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) QueueLen(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queue), nil
}

func (m *Memory) SaveSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.SessionID] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	return s, ok, nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}
