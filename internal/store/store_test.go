package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/store"
)

func TestStore(t *testing.T) {
	backends := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store {
			return store.NewMemory()
		},
		"redis": func(t *testing.T) store.Store {
			rs := miniredis.RunT(t)
			rc := redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{rs.Addr()},
			})
			t.Cleanup(func() { rc.Close() })
			return store.NewRedis(rc, "test")
		},
	}

	for name, makeStore := range backends {
		makeStore := makeStore
		t.Run(name, func(t *testing.T) {
			t.Run("pop pair is FIFO", func(t *testing.T) {
				s := makeStore(t)
				ctx := context.Background()

				for _, id := range []string{"c1", "c2", "c3", "c4"} {
					require.NoError(t, s.PushQueue(ctx, entry(id)))
				}

				a, b, ok, err := s.PopQueuePair(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, "c1", a.ConnID)
				require.Equal(t, "c2", b.ConnID)

				a, b, ok, err = s.PopQueuePair(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, "c3", a.ConnID)
				require.Equal(t, "c4", b.ConnID)

				n, err := s.QueueLen(ctx)
				require.NoError(t, err)
				require.Equal(t, 0, n)
			})

			t.Run("pop pair leaves a lone entry untouched", func(t *testing.T) {
				s := makeStore(t)
				ctx := context.Background()

				require.NoError(t, s.PushQueue(ctx, entry("c1")))

				_, _, ok, err := s.PopQueuePair(ctx)
				require.NoError(t, err)
				require.False(t, ok)

				n, err := s.QueueLen(ctx)
				require.NoError(t, err)
				require.Equal(t, 1, n)
			})

			t.Run("remove from the middle of the queue", func(t *testing.T) {
				s := makeStore(t)
				ctx := context.Background()

				for _, id := range []string{"c1", "c2", "c3"} {
					require.NoError(t, s.PushQueue(ctx, entry(id)))
				}

				removed, err := s.RemoveQueue(ctx, "c2")
				require.NoError(t, err)
				require.True(t, removed)

				a, b, ok, err := s.PopQueuePair(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, "c1", a.ConnID)
				require.Equal(t, "c3", b.ConnID)
			})

			t.Run("remove absent entry is a no-op", func(t *testing.T) {
				s := makeStore(t)
				ctx := context.Background()

				removed, err := s.RemoveQueue(ctx, "ghost")
				require.NoError(t, err)
				require.False(t, removed)
			})

			t.Run("session snapshot round trip", func(t *testing.T) {
				s := makeStore(t)
				ctx := context.Background()

				sess := domain.Session{
					SessionID: "s1",
					Players: [2]domain.Player{
						{ConnID: "c1", Name: "Alice", Score: 3},
						{ConnID: "c2", Name: "Bob", Score: 1},
					},
					State:          domain.StateActive,
					CurrentIndex:   4,
					TotalQuestions: 10,
				}
				require.NoError(t, s.SaveSession(ctx, sess))

				got, ok, err := s.GetSession(ctx, "s1")
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, sess.SessionID, got.SessionID)
				require.Equal(t, sess.Players[0].Score, got.Players[0].Score)
				require.Equal(t, sess.State, got.State)

				require.NoError(t, s.DeleteSession(ctx, "s1"))

				_, ok, err = s.GetSession(ctx, "s1")
				require.NoError(t, err)
				require.False(t, ok)
			})
		})
	}
}

func entry(connID string) domain.QueueEntry {
	return domain.QueueEntry{
		ConnID:      connID,
		Name:        "player-" + connID,
		EnqueueTime: time.Now().UTC().Truncate(time.Millisecond),
	}
}
