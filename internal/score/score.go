// Package score applies answer outcomes to the two players of a session
// and decides the winner at game end.
package score

import (
	"github.com/victornm/quizduel/internal/domain"
)

// PointsPerCorrect is the fixed value of a correct answer.
const PointsPerCorrect = 1

// Apply marks the player as having answered the current round and, when
// the answer was correct, adds the per-question value to its score.
// Returns false when connID is not a member of the session or the player
// already answered this round.
func Apply(sess *domain.Session, connID string, correct bool) bool {
	p := sess.PlayerByConn(connID)
	if p == nil || p.Answered {
		return false
	}

	p.Answered = true
	if correct {
		p.Score += PointsPerCorrect
	}
	return true
}

// ResetRound clears both players' answered flags for a new round.
func ResetRound(sess *domain.Session) {
	for i := range sess.Players {
		sess.Players[i].Answered = false
	}
}

// BothAnswered reports whether both players have answered the current
// round.
func BothAnswered(sess *domain.Session) bool {
	return sess.Players[0].Answered && sess.Players[1].Answered
}

// Winner returns the player with the strictly greater score, or nil on a
// tie. Ties deliberately have no winner.
func Winner(sess *domain.Session) *domain.Player {
	a, b := sess.Players[0], sess.Players[1]
	switch {
	case a.Score > b.Score:
		return &a
	case b.Score > a.Score:
		return &b
	}
	return nil
}
