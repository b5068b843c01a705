package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/registry"
)

func TestRegistry_RegisterTwice(t *testing.T) {
	r := registry.New()

	require.NoError(t, r.Register("c1", "Alice"))

	err := r.Register("c1", "Alice")
	require.True(t, errors.HasCode(err, errors.CodeAlreadyExists))
}

func TestRegistry_Roles(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register("c1", "Alice"))

	require.NoError(t, r.SetRole("c1", domain.RoleInSession, "s1"))
	c, ok := r.Get("c1")
	require.True(t, ok)
	require.Equal(t, domain.RoleInSession, c.Role)
	require.Equal(t, "s1", c.SessionID)

	require.NoError(t, r.SetRole("c1", domain.RoleIdle, ""))
	c, _ = r.Get("c1")
	require.Equal(t, domain.RoleIdle, c.Role)
	require.Empty(t, c.SessionID, "session id should be cleared when leaving in-session")

	err := r.SetRole("ghost", domain.RoleQueued, "")
	require.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestRegistry_UnregisterDispatchesByRole(t *testing.T) {
	tests := map[string]struct {
		role          domain.Role
		sessionID     string
		wantDequeue   int
		wantLeave     int
		wantSessionID string
	}{
		"idle connection triggers no cleanup": {
			role: domain.RoleIdle,
		},
		"queued connection is dequeued": {
			role:        domain.RoleQueued,
			wantDequeue: 1,
		},
		"playing connection leaves its session": {
			role:          domain.RoleInSession,
			sessionID:     "s1",
			wantLeave:     1,
			wantSessionID: "s1",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			r := registry.New()

			var (
				dequeues, leaves int
				gotSession       string
			)
			r.SetCleanup(registry.Cleanup{
				Dequeue: func(ctx context.Context, connID string) {
					dequeues++
				},
				LeaveSession: func(ctx context.Context, connID, sessionID string) {
					leaves++
					gotSession = sessionID
				},
			})

			require.NoError(t, r.Register("c1", "Alice"))
			require.NoError(t, r.SetRole("c1", tt.role, tt.sessionID))

			r.Unregister(context.Background(), "c1")

			require.Equal(t, tt.wantDequeue, dequeues)
			require.Equal(t, tt.wantLeave, leaves)
			require.Equal(t, tt.wantSessionID, gotSession)
			require.Equal(t, 0, r.Count())
		})
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := registry.New()

	var (
		mu       sync.Mutex
		cleanups int
	)
	r.SetCleanup(registry.Cleanup{
		Dequeue: func(ctx context.Context, connID string) {
			mu.Lock()
			cleanups++
			mu.Unlock()
		},
	})

	require.NoError(t, r.Register("c1", "Alice"))
	require.NoError(t, r.SetRole("c1", domain.RoleQueued, ""))

	// The close event of a transport may fire more than once.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Unregister(context.Background(), "c1")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, cleanups, "cleanup should run exactly once")
}
