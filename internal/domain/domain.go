package domain

import (
	"time"
)

// Role describes what a live connection is currently doing.
type Role string

const (
	RoleIdle      Role = "idle"
	RoleQueued    Role = "queued"
	RoleInSession Role = "in-session"
)

// Connection represents one live client connection.
type Connection struct {
	ConnID string
	Name   string
	Role   Role
	// SessionID is set only while Role is RoleInSession.
	SessionID string
}

// QueueEntry is a waiting player awaiting pairing.
type QueueEntry struct {
	ConnID      string    `json:"conn_id"`
	Name        string    `json:"name"`
	EnqueueTime time.Time `json:"enqueue_time"`
}

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	// StateAwaitingSignal means the match exists but the peers have not
	// finished their media handshake yet.
	StateAwaitingSignal SessionState = "awaiting-signal"
	StateActive         SessionState = "active"
	StateEnded          SessionState = "ended"
)

// Player is one of the two participants of a session.
type Player struct {
	ConnID   string `json:"conn_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Answered bool   `json:"-"`
}

// Session is one active two-player trivia match.
type Session struct {
	SessionID string       `json:"session_id"`
	Players   [2]Player    `json:"players"`
	State     SessionState `json:"state"`
	// IssuedQuestionIDs lists the IDs of questions already sent, in order.
	IssuedQuestionIDs []string `json:"issued_question_ids"`
	// CurrentIndex is the 0-based index of the question currently in play.
	CurrentIndex   int `json:"current_index"`
	TotalQuestions int `json:"total_questions"`
}

// PlayerByConn returns the player with the given connection ID, or nil.
func (s *Session) PlayerByConn(connID string) *Player {
	for i := range s.Players {
		if s.Players[i].ConnID == connID {
			return &s.Players[i]
		}
	}
	return nil
}

// Opponent returns the other player of the session, or nil when connID is
// not a member.
func (s *Session) Opponent(connID string) *Player {
	switch connID {
	case s.Players[0].ConnID:
		return &s.Players[1]
	case s.Players[1].ConnID:
		return &s.Players[0]
	}
	return nil
}

// SignalKind is the type tag of a peer-to-peer signaling message. The
// payload itself is opaque to the server.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
	SignalPeerReady    SignalKind = "peer-ready"
)

// ValidSignalKind reports whether k is one of the known signal kinds.
func ValidSignalKind(k SignalKind) bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICECandidate, SignalPeerReady:
		return true
	}
	return false
}

// Question is a single trivia question. CorrectOption is never sent to
// clients.
type Question struct {
	QuestionID    string
	Prompt        string
	Options       []string
	CorrectOption int
}
