package matchmaking_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/matchmaking"
	"github.com/victornm/quizduel/internal/registry"
	"github.com/victornm/quizduel/internal/store"
)

func TestService_FIFOMatching(t *testing.T) {
	s, eb, collect := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, "a", "Alice"))
	require.NoError(t, s.Enqueue(ctx, "b", "Bob"))
	require.NoError(t, s.Enqueue(ctx, "c", "Carol"))
	require.NoError(t, s.Enqueue(ctx, "d", "Dave"))
	eb.Stop()

	matches := collect()
	require.Len(t, matches, 2)

	// The subscription is serialized, so matches arrive in the order they
	// were made; within a pair the first pop is always the older entry.
	var pairs [][2]string
	for _, m := range matches {
		pairs = append(pairs, [2]string{m.PlayerA.ConnID, m.PlayerB.ConnID})
	}
	require.Equal(t, [][2]string{{"a", "b"}, {"c", "d"}}, pairs)
}

func TestService_EnqueueWhilePlayingRejected(t *testing.T) {
	eb := event.NewBus()
	reg := registry.New()
	require.NoError(t, reg.Register("a", "Alice"))
	require.NoError(t, reg.Register("x", "Xavier"))
	require.NoError(t, reg.Register("y", "Yann"))
	require.NoError(t, reg.SetRole("a", domain.RoleInSession, "s1"))

	var (
		mu      sync.Mutex
		matches []domain.EventPlayersMatched
	)
	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		mu.Lock()
		matches = append(matches, e.(domain.EventPlayersMatched))
		mu.Unlock()
		return nil
	}, domain.EventNamePlayersMatched)

	s := matchmaking.NewService(matchmaking.Config{
		Store:    store.NewMemory(),
		Registry: reg,
		EventBus: eb,
		Clock:    clockwork.NewFakeClock(),
	})
	ctx := context.Background()

	err := s.Enqueue(ctx, "a", "Alice")
	require.True(t, errors.HasCode(err, errors.CodeFailedPrecondition))

	c, ok := reg.Get("a")
	require.True(t, ok)
	require.Equal(t, domain.RoleInSession, c.Role, "playing role must survive the rejected join")
	require.Equal(t, "s1", c.SessionID)

	// The playing connection can never be handed to a new pair.
	require.NoError(t, s.Enqueue(ctx, "x", "Xavier"))
	require.NoError(t, s.Enqueue(ctx, "y", "Yann"))
	eb.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, matches, 1)
	require.Equal(t, "x", matches[0].PlayerA.ConnID)
	require.Equal(t, "y", matches[0].PlayerB.ConnID)
}

func TestService_DuplicateEnqueueRejected(t *testing.T) {
	s, eb, collect := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, "a", "Alice"))

	err := s.Enqueue(ctx, "a", "Alice")
	require.True(t, errors.HasCode(err, errors.CodeAlreadyExists))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n, "connection should stay queued exactly once")

	eb.Stop()
	require.Empty(t, collect())
}

func TestService_DequeueWhileWaiting(t *testing.T) {
	s, eb, collect := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, "a", "Alice"))
	s.Dequeue(ctx, "a")

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// A dequeued connection may queue again.
	require.NoError(t, s.Enqueue(ctx, "a", "Alice"))
	require.NoError(t, s.Enqueue(ctx, "b", "Bob"))
	eb.Stop()

	require.Len(t, collect(), 1)
}

func TestService_DequeueKeepsMembershipWhenStoreFails(t *testing.T) {
	eb := event.NewBus()
	reg := registry.New()
	require.NoError(t, reg.Register("a", "Alice"))

	fs := &failingStore{Store: store.NewMemory()}
	s := matchmaking.NewService(matchmaking.Config{
		Store:    fs,
		Registry: reg,
		EventBus: eb,
		Clock:    clockwork.NewFakeClock(),
	})
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, "a", "Alice"))

	fs.removeErr = fmt.Errorf("connection refused")
	s.Dequeue(ctx, "a")

	// The backing queue still holds the entry, so the membership record
	// must agree and keep rejecting a second join.
	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	err = s.Enqueue(ctx, "a", "Alice")
	require.True(t, errors.HasCode(err, errors.CodeAlreadyExists))

	// Once the store recovers the dequeue goes through.
	fs.removeErr = nil
	s.Dequeue(ctx, "a")

	n, err = s.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, s.Enqueue(ctx, "a", "Alice"))
}

func TestService_DequeueAbsentIsNoop(t *testing.T) {
	s, _, _ := makeService(t)

	s.Dequeue(context.Background(), "ghost")

	n, err := s.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestService_ConcurrentEnqueueNeverSplitsPairs(t *testing.T) {
	s, eb, collect := makeService(t)
	ctx := context.Background()

	const players = 40

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%02d", i)
			require.NoError(t, s.Enqueue(ctx, id, "player-"+id))
		}(i)
	}
	wg.Wait()
	eb.Stop()

	matches := collect()
	require.Len(t, matches, players/2)

	seen := make(map[string]bool)
	for _, m := range matches {
		require.NotEqual(t, m.PlayerA.ConnID, m.PlayerB.ConnID)
		require.False(t, seen[m.PlayerA.ConnID], "connection matched twice: %s", m.PlayerA.ConnID)
		require.False(t, seen[m.PlayerB.ConnID], "connection matched twice: %s", m.PlayerB.ConnID)
		seen[m.PlayerA.ConnID] = true
		seen[m.PlayerB.ConnID] = true
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// failingStore wraps a store and fails RemoveQueue on demand.
type failingStore struct {
	store.Store
	removeErr error
}

func (s *failingStore) RemoveQueue(ctx context.Context, connID string) (bool, error) {
	if s.removeErr != nil {
		return false, s.removeErr
	}
	return s.Store.RemoveQueue(ctx, connID)
}

func makeService(t *testing.T) (*matchmaking.Service, *event.Bus, func() []domain.EventPlayersMatched) {
	t.Helper()

	eb := event.NewBus()

	var (
		mu      sync.Mutex
		matches []domain.EventPlayersMatched
	)
	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		mu.Lock()
		matches = append(matches, e.(domain.EventPlayersMatched))
		mu.Unlock()
		return nil
	}, domain.EventNamePlayersMatched)

	reg := registry.New()
	for _, id := range []string{"a", "b", "c", "d", "ghost"} {
		_ = reg.Register(id, "")
	}
	for i := 0; i < 40; i++ {
		_ = reg.Register(fmt.Sprintf("c%02d", i), "")
	}

	s := matchmaking.NewService(matchmaking.Config{
		Store:    store.NewMemory(),
		Registry: reg,
		EventBus: eb,
		Clock:    clockwork.NewFakeClock(),
	})

	return s, eb, func() []domain.EventPlayersMatched {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.EventPlayersMatched(nil), matches...)
	}
}
