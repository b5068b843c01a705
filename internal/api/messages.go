package api

import (
	"encoding/json"

	"github.com/victornm/quizduel/internal/domain"
)

// Inbound event names, sent by clients.
const (
	eventJoinQueue    = "join-queue"
	eventSubmitAnswer = "submit-answer"
	eventSignal       = "signal"
)

// Outbound event names, sent to clients.
const (
	eventMatchFound           = "match-found"
	eventQuestion             = "question"
	eventScoreUpdate          = "score-update"
	eventGameEnd              = "game-end"
	eventOpponentDisconnected = "opponent-disconnected"
	eventError                = "error"
)

// Envelope is the wire frame of every inbound message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Notification is the wire frame of every outbound message.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type (
	JoinQueueRequest struct {
		Name string `json:"name"`
	}

	SubmitAnswerRequest struct {
		SessionID     string `json:"session_id"`
		QuestionIndex int    `json:"question_index"`
		// Option is the chosen option index; null means the client ran
		// out of time and reports itself as unanswered.
		Option *int `json:"option"`
	}

	SignalRequest struct {
		SessionID string          `json:"session_id"`
		Kind      string          `json:"kind"`
		Payload   json.RawMessage `json:"payload"`
	}
)

type (
	PlayerView struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	MatchFound struct {
		SessionID string       `json:"session_id"`
		Players   []PlayerView `json:"players"`
		Status    string       `json:"status"`
	}

	QuestionPayload struct {
		SessionID string `json:"session_id"`
		// QuestionNumber is 1-based for display; the answer refers to
		// the 0-based question index.
		QuestionNumber int      `json:"question_number"`
		QuestionIndex  int      `json:"question_index"`
		Prompt         string   `json:"prompt"`
		Options        []string `json:"options"`
		TotalQuestions int      `json:"total_questions"`
	}

	ScoreUpdate struct {
		SessionID string       `json:"session_id"`
		Scores    []PlayerView `json:"scores"`
	}

	GameEnd struct {
		SessionID string `json:"session_id"`
		// Winner is null on a tie.
		Winner      *PlayerView  `json:"winner"`
		FinalScores []PlayerView `json:"final_scores"`
	}

	OpponentDisconnected struct {
		SessionID string `json:"session_id"`
	}

	SignalMessage struct {
		Kind    string          `json:"kind"`
		Payload json.RawMessage `json:"payload"`
		From    string          `json:"from"`
	}
)

func playerViews(players [2]domain.Player) []PlayerView {
	out := make([]PlayerView, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerView{
			ID:    p.ConnID,
			Name:  p.Name,
			Score: p.Score,
		})
	}
	return out
}

func playerView(p domain.Player) *PlayerView {
	return &PlayerView{
		ID:    p.ConnID,
		Name:  p.Name,
		Score: p.Score,
	}
}
