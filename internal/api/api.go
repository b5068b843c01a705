// Package api is the websocket transport in front of the coordination
// core. Inbound frames are dispatched to the matchmaking queue, the game
// and the signaling relay; outbound domain events are delivered as
// addressed sends to the one or two connections they concern. The core
// itself never sees the websocket.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/game"
	"github.com/victornm/quizduel/internal/matchmaking"
	"github.com/victornm/quizduel/internal/registry"
	"github.com/victornm/quizduel/internal/relay"
)

type Config struct {
	Router      gin.IRouter
	EventBus    *event.Bus
	Registry    *registry.Registry
	Matchmaking *matchmaking.Service
	Game        *game.Service
	Relay       *relay.Service
}

type API struct {
	registry    *registry.Registry
	matchmaking *matchmaking.Service
	game        *game.Service
	relay       *relay.Service

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func New(c Config) *API {
	a := &API{
		registry:    c.Registry,
		matchmaking: c.Matchmaking,
		game:        c.Game,
		relay:       c.Relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Anonymous players, no cookies: cross-origin upgrades are
			// fine.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}

	c.Router.GET("/ws", a.handleWS)
	c.Router.GET("/health", a.handleHealth)
	c.Router.GET("/api/queue-status", a.handleQueueStatus)

	// One subscription for every outbound event: the bus serializes a
	// subscription's deliveries, so each connection sees notifications in
	// publish order (a score update is never overtaken by the next round's
	// question, an ice candidate never overtakes its offer).
	c.EventBus.Subscribe(a.notify,
		domain.EventNameMatchFound,
		domain.EventNameQuestionIssued,
		domain.EventNameScoreUpdated,
		domain.EventNameGameEnded,
		domain.EventNameGameAborted,
		domain.EventNameOpponentDisconnected,
		domain.EventNameSignalForwarded,
	)

	return a
}

func (a *API) notify(ctx context.Context, e event.Event) error {
	switch e := e.(type) {
	case domain.EventMatchFound:
		return a.notifyMatchFound(ctx, e)
	case domain.EventQuestionIssued:
		return a.notifyQuestion(ctx, e)
	case domain.EventScoreUpdated:
		return a.notifyScoreUpdate(ctx, e)
	case domain.EventGameEnded:
		return a.notifyGameEnd(ctx, e)
	case domain.EventGameAborted:
		return a.notifyGameAborted(ctx, e)
	case domain.EventOpponentDisconnected:
		return a.notifyOpponentDisconnected(ctx, e)
	case domain.EventSignalForwarded:
		return a.notifySignal(ctx, e)
	}
	return nil
}

func (a *API) handleWS(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	if err := a.registry.Register(id, ""); err != nil {
		slog.ErrorContext(c.Request.Context(), "api: register connection failed",
			"conn_id", id,
			"error", err,
		)
		conn.Close()
		return
	}

	cl := &client{
		id:   id,
		api:  a,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	a.mu.Lock()
	a.clients[id] = cl
	a.mu.Unlock()

	slog.InfoContext(c.Request.Context(), "api: client connected", "conn_id", id)

	go cl.writePump()
	go cl.readPump()
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleQueueStatus(c *gin.Context) {
	n, err := a.matchmaking.Len(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get queue status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queueLength": n})
}

// handleMessage dispatches one inbound frame. A panic anywhere in the
// handler chain disconnects only this client, through the same path as a
// normal disconnect.
func (a *API) handleMessage(ctx context.Context, c *client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "api: handler panic",
				"conn_id", c.id,
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
			a.drop(ctx, c)
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		a.sendError(c.id, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed message")))
		return
	}

	switch env.Event {
	case eventJoinQueue:
		a.handleJoinQueue(ctx, c, env.Data)
	case eventSubmitAnswer:
		a.handleSubmitAnswer(ctx, c, env.Data)
	case eventSignal:
		a.handleSignal(ctx, c, env.Data)
	default:
		a.sendError(c.id, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown event: %s", env.Event)))
	}
}

func (a *API) handleJoinQueue(ctx context.Context, c *client, data json.RawMessage) {
	var req JoinQueueRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Name == "" {
		a.sendError(c.id, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("join-queue requires a name")))
		return
	}

	if err := a.matchmaking.Enqueue(ctx, c.id, req.Name); err != nil {
		a.sendError(c.id, err)
	}
}

func (a *API) handleSubmitAnswer(ctx context.Context, c *client, data json.RawMessage) {
	var req SubmitAnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		a.sendError(c.id, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed submit-answer")))
		return
	}

	option := -1
	if req.Option != nil {
		option = *req.Option
	}

	err := a.game.SubmitAnswer(ctx, req.SessionID, c.id, req.QuestionIndex, option)
	switch {
	case err == nil:
	case errors.HasCode(err, errors.CodeFailedPrecondition):
		// Stale round: late delivery, dropped on purpose.
		slog.DebugContext(ctx, "api: stale answer dropped",
			"conn_id", c.id,
			"session_id", req.SessionID,
			"round", req.QuestionIndex,
		)
	case errors.HasCode(err, errors.CodePermissionDenied):
		slog.DebugContext(ctx, "api: answer from non-member dropped",
			"conn_id", c.id,
			"session_id", req.SessionID,
		)
	default:
		slog.WarnContext(ctx, "api: submit answer failed",
			"conn_id", c.id,
			"session_id", req.SessionID,
			"error", err,
		)
		a.sendError(c.id, err)
	}
}

func (a *API) handleSignal(ctx context.Context, c *client, data json.RawMessage) {
	var req SignalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		a.sendError(c.id, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed signal")))
		return
	}

	kind := domain.SignalKind(req.Kind)
	a.relay.Relay(ctx, req.SessionID, c.id, kind, req.Payload)

	// peer-ready doubles as the go-ahead for the question clock.
	if kind == domain.SignalPeerReady {
		if err := a.game.PeerReady(ctx, req.SessionID, c.id); err != nil {
			slog.DebugContext(ctx, "api: peer-ready ignored",
				"conn_id", c.id,
				"session_id", req.SessionID,
				"error", err,
			)
		}
	}
}

// drop disconnects the client and runs the registry cleanup exactly once,
// whether triggered by read failure, a handler panic, or shutdown.
func (a *API) drop(ctx context.Context, c *client) {
	c.closeOnce.Do(func() {
		a.mu.Lock()
		delete(a.clients, c.id)
		a.mu.Unlock()

		close(c.done)
		c.conn.Close()

		a.registry.Unregister(ctx, c.id)
	})
}

func (a *API) notifyMatchFound(ctx context.Context, e domain.EventMatchFound) error {
	data := MatchFound{
		SessionID: e.Session.SessionID,
		Players:   playerViews(e.Session.Players),
		Status:    "playing",
	}
	return a.sendToPlayers(ctx, e.Session, eventMatchFound, data)
}

func (a *API) notifyQuestion(ctx context.Context, e domain.EventQuestionIssued) error {
	// The correct option stays server-side.
	data := QuestionPayload{
		SessionID:      e.Session.SessionID,
		QuestionNumber: e.Round + 1,
		QuestionIndex:  e.Round,
		Prompt:         e.Question.Prompt,
		Options:        e.Question.Options,
		TotalQuestions: e.Session.TotalQuestions,
	}
	return a.sendToPlayers(ctx, e.Session, eventQuestion, data)
}

func (a *API) notifyScoreUpdate(ctx context.Context, e domain.EventScoreUpdated) error {
	data := ScoreUpdate{
		SessionID: e.Session.SessionID,
		Scores:    playerViews(e.Session.Players),
	}
	return a.sendToPlayers(ctx, e.Session, eventScoreUpdate, data)
}

func (a *API) notifyGameEnd(ctx context.Context, e domain.EventGameEnded) error {
	data := GameEnd{
		SessionID:   e.Session.SessionID,
		FinalScores: playerViews(e.Session.Players),
	}
	if e.Winner != nil {
		data.Winner = playerView(*e.Winner)
	}
	return a.sendToPlayers(ctx, e.Session, eventGameEnd, data)
}

// notifyGameAborted tells both players their session died of a server
// fault, as an error event rather than a game result.
func (a *API) notifyGameAborted(ctx context.Context, e domain.EventGameAborted) error {
	data := errors.New(errors.CodeInternal,
		errors.WithMessagef("session %s aborted", e.Session.SessionID))
	return a.sendToPlayers(ctx, e.Session, eventError, data)
}

func (a *API) notifyOpponentDisconnected(_ context.Context, e domain.EventOpponentDisconnected) error {
	return a.send(e.Remaining.ConnID, eventOpponentDisconnected, OpponentDisconnected{
		SessionID: e.SessionID,
	})
}

func (a *API) notifySignal(_ context.Context, e domain.EventSignalForwarded) error {
	return a.send(e.To, eventSignal, SignalMessage{
		Kind:    string(e.Kind),
		Payload: e.Payload,
		From:    e.From,
	})
}

// sendToPlayers fans the notification out to both players concurrently.
// Room broadcast in spirit, but always two explicit addressed sends.
func (a *API) sendToPlayers(_ context.Context, sess domain.Session, event string, data any) error {
	var eg errgroup.Group
	for _, p := range sess.Players {
		p := p
		eg.Go(func() error {
			return a.send(p.ConnID, event, data)
		})
	}
	return eg.Wait()
}

func (a *API) send(connID, event string, data any) error {
	b, err := json.Marshal(Notification{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("api: marshal %s: %w", event, err)
	}

	a.mu.RLock()
	c, ok := a.clients[connID]
	a.mu.RUnlock()
	if !ok {
		// Normal during teardown: the other player may already be gone.
		slog.Debug("api: send to absent connection skipped",
			"conn_id", connID,
			"event", event,
		)
		return nil
	}

	select {
	case c.send <- b:
		return nil
	default:
		slog.Warn("api: send buffer full, message dropped",
			"conn_id", connID,
			"event", event,
		)
		return nil
	}
}

func (a *API) sendError(connID string, err error) {
	e := errors.Convert(err)
	if sendErr := a.send(connID, eventError, e); sendErr != nil {
		slog.Warn("api: send error event failed", "conn_id", connID, "error", sendErr)
	}
}

// Shutdown closes every live client connection.
func (a *API) Shutdown(ctx context.Context) {
	a.mu.RLock()
	clients := make([]*client, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.mu.RUnlock()

	for _, c := range clients {
		a.drop(ctx, c)
	}
}
