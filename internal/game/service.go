// Package game drives a session through its rounds: issue a question,
// wait until both players answered or the deadline fires, score the round,
// advance. One goroutine per active session; the deadline is a cancellable
// clock timer, never a self-re-arming callback, so teardown cancels
// exactly one pending timer.
package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/question"
	"github.com/victornm/quizduel/internal/score"
	"github.com/victornm/quizduel/internal/session"
)

const (
	DefaultTotalQuestions = 10
	DefaultRoundTimeout   = 10 * time.Second
)

type Config struct {
	EventBus  *event.Bus
	Sessions  *session.Service
	Questions question.Provider
	Clock     clockwork.Clock

	TotalQuestions int
	RoundTimeout   time.Duration
}

type Service struct {
	eb        *event.Bus
	sessions  *session.Service
	questions question.Provider
	clock     clockwork.Clock

	total   int
	timeout time.Duration

	mu   sync.Mutex
	runs map[string]*run
}

// run is the in-flight state of one session's game loop.
type run struct {
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc

	mu         sync.Mutex
	ready      map[string]bool
	started    bool
	round      int
	correct    int
	roundDone  chan struct{}
	doneClosed bool
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.TotalQuestions <= 0 {
		c.TotalQuestions = DefaultTotalQuestions
	}
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = DefaultRoundTimeout
	}

	s := &Service{
		eb:        c.EventBus,
		sessions:  c.Sessions,
		questions: c.Questions,
		clock:     c.Clock,
		total:     c.TotalQuestions,
		timeout:   c.RoundTimeout,
		runs:      make(map[string]*run),
	}

	s.eb.Subscribe(func(ctx context.Context, e event.Event) error {
		return s.handleMatched(ctx, e.(domain.EventPlayersMatched))
	}, domain.EventNamePlayersMatched)

	return s
}

// handleMatched creates the session for a freshly matched pair and
// announces it. The game loop itself starts once both peers are ready.
func (s *Service) handleMatched(ctx context.Context, e domain.EventPlayersMatched) error {
	sess, err := s.sessions.Create(ctx, e.PlayerA, e.PlayerB, s.total)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		sessionID: sess.SessionID,
		ctx:       runCtx,
		cancel:    cancel,
		ready:     make(map[string]bool, 2),
		round:     -1,
	}

	s.mu.Lock()
	s.runs[sess.SessionID] = r
	s.mu.Unlock()

	s.eb.Publish(ctx, domain.EventMatchFound{Session: sess})
	return nil
}

// PeerReady records that a player finished its media handshake. When both
// players are ready the session turns active and round 0 starts.
func (s *Service) PeerReady(ctx context.Context, sessionID, connID string) error {
	r := s.getRun(sessionID)
	if r == nil {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.PlayerByConn(connID) == nil {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("not a member of session %s", sessionID))
	}

	r.mu.Lock()
	r.ready[connID] = true
	start := len(r.ready) == 2 && !r.started
	if start {
		r.started = true
	}
	r.mu.Unlock()

	if !start {
		return nil
	}

	if _, err := s.sessions.Update(ctx, sessionID, func(ss *domain.Session) error {
		ss.State = domain.StateActive
		return nil
	}); err != nil {
		return err
	}

	slog.InfoContext(ctx, "game: session active", "session_id", sessionID)
	go s.runRounds(r)
	return nil
}

func (s *Service) runRounds(r *run) {
	ctx := r.ctx

	for idx := 0; idx < s.total; idx++ {
		q, err := s.questions.NextQuestion(idx)
		if err != nil {
			slog.ErrorContext(ctx, "game: question provider failed",
				"session_id", r.sessionID,
				"round", idx,
				"error", err,
			)
			s.abort(ctx, r)
			return
		}

		// The round marker and correct option must be in place before
		// the session's index advances, so a submission can never be
		// checked against the wrong round's answer.
		r.mu.Lock()
		r.round = idx
		r.correct = q.CorrectOption
		done := make(chan struct{})
		r.roundDone = done
		r.doneClosed = false
		r.mu.Unlock()

		sess, err := s.sessions.Update(ctx, r.sessionID, func(ss *domain.Session) error {
			ss.CurrentIndex = idx
			ss.IssuedQuestionIDs = append(ss.IssuedQuestionIDs, q.QuestionID)
			score.ResetRound(ss)
			return nil
		})
		if err != nil {
			// Session torn down under us.
			return
		}

		s.eb.Publish(ctx, domain.EventQuestionIssued{
			Session:  sess,
			Question: q,
			Round:    idx,
		})

		timer := s.clock.NewTimer(s.timeout)
		select {
		case <-done:
			stopAndDrainTimer(timer)
		case <-timer.Chan():
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return
		}

		// Whoever has not answered by now is scored as incorrect.
		sess, err = s.sessions.Update(ctx, r.sessionID, func(ss *domain.Session) error {
			for i := range ss.Players {
				ss.Players[i].Answered = true
			}
			return nil
		})
		if err != nil {
			return
		}

		s.eb.Publish(ctx, domain.EventScoreUpdated{Session: sess, Round: idx})
	}

	s.finish(ctx, r)
}

// finish ends the session after its last round and announces the result
// exactly once.
func (s *Service) finish(ctx context.Context, r *run) {
	sess, err := s.sessions.End(ctx, r.sessionID)
	s.removeRun(r.sessionID)
	if err != nil {
		// Torn down concurrently, the disconnect path already spoke.
		return
	}

	winner := score.Winner(&sess)
	s.eb.Publish(ctx, domain.EventGameEnded{Session: sess, Winner: winner})
}

// abort ends a session killed by a server fault. Publishes game.aborted,
// never a game result: partial rounds must not name a winner.
func (s *Service) abort(ctx context.Context, r *run) {
	sess, err := s.sessions.End(ctx, r.sessionID)
	s.removeRun(r.sessionID)
	if err != nil {
		return
	}

	slog.WarnContext(ctx, "game: session aborted", "session_id", r.sessionID)
	s.eb.Publish(ctx, domain.EventGameAborted{Session: sess})
}

// SubmitAnswer applies a player's answer for the given round. A negative
// option means the client reported its own timeout and is scored as
// incorrect.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, connID string, round, option int) error {
	r := s.getRun(sessionID)
	if r == nil {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}

	r.mu.Lock()
	curRound := r.round
	correctOpt := r.correct
	done := r.roundDone
	r.mu.Unlock()

	if round != curRound {
		return staleRound(sessionID, round)
	}
	correct := option >= 0 && option == correctOpt

	var both bool
	_, err := s.sessions.Update(ctx, sessionID, func(ss *domain.Session) error {
		if ss.State != domain.StateActive {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("session %s not active", sessionID))
		}
		if ss.CurrentIndex != round {
			return staleRound(sessionID, round)
		}
		if ss.PlayerByConn(connID) == nil {
			return errors.New(errors.CodePermissionDenied,
				errors.WithMessagef("not a member of session %s", sessionID))
		}
		if !score.Apply(ss, connID, correct) {
			// Second answer for the same round.
			return staleRound(sessionID, round)
		}
		both = score.BothAnswered(ss)
		return nil
	})
	if err != nil {
		return err
	}

	if both {
		r.mu.Lock()
		if r.round == round && !r.doneClosed {
			r.doneClosed = true
			close(done)
		}
		r.mu.Unlock()
	}

	return nil
}

// LeaveSession tears down the session because connID disconnected:
// cancel the pending round timer, end the session, tell the remaining
// player.
func (s *Service) LeaveSession(ctx context.Context, connID, sessionID string) {
	if r := s.getRun(sessionID); r != nil {
		r.cancel()
	}

	sess, err := s.sessions.End(ctx, sessionID)
	s.removeRun(sessionID)
	if err != nil {
		// Already ended; nothing left to tear down.
		return
	}

	slog.InfoContext(ctx, "game: player left mid-session",
		"session_id", sessionID,
		"conn_id", connID,
	)

	if opp := sess.Opponent(connID); opp != nil {
		s.eb.Publish(ctx, domain.EventOpponentDisconnected{
			SessionID: sessionID,
			Remaining: *opp,
		})
	}
}

// Stop cancels every in-flight game loop. Used on server shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.runs {
		r.cancel()
	}
}

func (s *Service) getRun(sessionID string) *run {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runs[sessionID]
}

func (s *Service) removeRun(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, sessionID)
}

func staleRound(sessionID string, round int) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("stale round %d for session %s", round, sessionID))
}

// stopAndDrainTimer stops a timer and drains its channel if it already
// fired, so no late tick leaks into the next round.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
