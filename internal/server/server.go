package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizduel/internal/api"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/game"
	"github.com/victornm/quizduel/internal/matchmaking"
	"github.com/victornm/quizduel/internal/question"
	"github.com/victornm/quizduel/internal/registry"
	"github.com/victornm/quizduel/internal/relay"
	"github.com/victornm/quizduel/internal/session"
	"github.com/victornm/quizduel/internal/store"
	"github.com/victornm/quizduel/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		// Enabled switches the waiting queue and session snapshots from
		// process memory to redis. Matching itself stays single-process.
		Enabled bool
		Addrs   []string
		Pass    string
		Prefix  string
	}

	Game struct {
		TotalQuestions  int
		QuestionSeconds int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis redis.UniversalClient
		store store.Store
	}

	service struct {
		registry    *registry.Registry
		matchmaking *matchmaking.Service
		sessions    *session.Service
		game        *game.Service
		relay       *relay.Service
	}

	api  *api.API
	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	s.initMetrics()
	return s, nil
}

func (s *Server) initInfra() error {
	if !s.c.Redis.Enabled {
		s.infra.store = store.NewMemory()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}

	s.infra.redis = r
	s.infra.store = store.NewRedis(r, s.c.Redis.Prefix)
	return nil
}

func (s *Server) initService() {
	s.service.registry = registry.New()

	s.service.sessions = session.NewService(session.Config{
		Registry: s.service.registry,
		Store:    s.infra.store,
	})

	s.service.matchmaking = matchmaking.NewService(matchmaking.Config{
		Store:    s.infra.store,
		Registry: s.service.registry,
		EventBus: s.eb,
	})

	s.service.game = game.NewService(game.Config{
		EventBus:       s.eb,
		Sessions:       s.service.sessions,
		Questions:      question.NewStaticProvider(),
		TotalQuestions: s.c.Game.TotalQuestions,
		RoundTimeout:   time.Duration(s.c.Game.QuestionSeconds) * time.Second,
	})

	s.service.relay = relay.NewService(relay.Config{
		Sessions: s.service.sessions,
		EventBus: s.eb,
	})

	// A dropped connection cleans up after itself by role.
	s.service.registry.SetCleanup(registry.Cleanup{
		Dequeue:      s.service.matchmaking.Dequeue,
		LeaveSession: s.service.game.LeaveSession,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.api = api.New(api.Config{
		Router:      e,
		EventBus:    s.eb,
		Registry:    s.service.registry,
		Matchmaking: s.service.matchmaking,
		Game:        s.service.game,
		Relay:       s.service.relay,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) initMetrics() {
	telemetry.RegisterGauges(telemetry.Gauges{
		QueueLength: func() int {
			n, err := s.service.matchmaking.Len(context.Background())
			if err != nil {
				return 0
			}
			return n
		},
		ActiveSessions:   s.service.sessions.ActiveCount,
		ConnectedClients: s.service.registry.Count,
	})
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.api.Shutdown(ctx)
	s.service.game.Stop()
	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
