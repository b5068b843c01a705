package domain

import "encoding/json"

const (
	EventNamePlayersMatched       = "players.matched"
	EventNameMatchFound           = "match.found"
	EventNameQuestionIssued       = "question.issued"
	EventNameScoreUpdated         = "score.updated"
	EventNameGameEnded            = "game.ended"
	EventNameGameAborted          = "game.aborted"
	EventNameOpponentDisconnected = "opponent.disconnected"
	EventNameSignalForwarded      = "signal.forwarded"
)

// EventPlayersMatched is published by the matchmaking queue when two
// waiting players have been popped as a pair.
type EventPlayersMatched struct {
	PlayerA QueueEntry
	PlayerB QueueEntry
}

func (EventPlayersMatched) Name() string { return EventNamePlayersMatched }

// EventMatchFound is published once a session exists for a matched pair.
type EventMatchFound struct {
	Session Session
}

func (EventMatchFound) Name() string { return EventNameMatchFound }

// EventQuestionIssued is published each time a round starts. The question
// carried here still holds the correct option; the transport strips it
// before delivery.
type EventQuestionIssued struct {
	Session  Session
	Question Question
	// Round is the 0-based question index the question was issued for.
	Round int
}

func (EventQuestionIssued) Name() string { return EventNameQuestionIssued }

// EventScoreUpdated is published after a round has been scored.
type EventScoreUpdated struct {
	Session Session
	Round   int
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

// EventGameEnded is published exactly once when a session finishes all its
// rounds. Winner is nil on a tie.
type EventGameEnded struct {
	Session Session
	Winner  *Player
}

func (EventGameEnded) Name() string { return EventNameGameEnded }

// EventGameAborted is published when a session is torn down because of a
// server-side fault, never as a game result.
type EventGameAborted struct {
	Session Session
}

func (EventGameAborted) Name() string { return EventNameGameAborted }

// EventOpponentDisconnected is published when a session is torn down
// because one of its players disconnected. Remaining is the player still
// connected.
type EventOpponentDisconnected struct {
	SessionID string
	Remaining Player
}

func (EventOpponentDisconnected) Name() string { return EventNameOpponentDisconnected }

// EventSignalForwarded carries an opaque signaling payload addressed to a
// single connection.
type EventSignalForwarded struct {
	SessionID string
	To        string
	From      string
	Kind      SignalKind
	Payload   json.RawMessage
}

func (EventSignalForwarded) Name() string { return EventNameSignalForwarded }
