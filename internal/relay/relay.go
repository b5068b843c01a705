// Package relay forwards opaque peer-to-peer handshake messages between
// the two members of a session. The payload is never parsed; delivery is
// best effort with no retries.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/session"
)

type Config struct {
	Sessions *session.Service
	EventBus *event.Bus
}

type Service struct {
	sessions *session.Service
	eb       *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		sessions: c.Sessions,
		eb:       c.EventBus,
	}
}

// Relay addresses the payload to the other member of the session, with the
// sender stamped on. Unknown sessions and senders that are not members are
// dropped silently: surfacing the reason would leak session membership.
func (s *Service) Relay(ctx context.Context, sessionID, from string, kind domain.SignalKind, payload json.RawMessage) {
	if !domain.ValidSignalKind(kind) {
		slog.DebugContext(ctx, "relay: unknown signal kind dropped",
			"session_id", sessionID,
			"kind", string(kind),
		)
		return
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		slog.DebugContext(ctx, "relay: unknown session, signal dropped",
			"session_id", sessionID,
		)
		return
	}

	other := sess.Opponent(from)
	if other == nil {
		slog.DebugContext(ctx, "relay: sender not a session member, signal dropped",
			"session_id", sessionID,
			"from", from,
		)
		return
	}

	s.eb.Publish(ctx, domain.EventSignalForwarded{
		SessionID: sessionID,
		To:        other.ConnID,
		From:      from,
		Kind:      kind,
		Payload:   payload,
	})
}
