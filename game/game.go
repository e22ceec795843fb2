// Package game defines what the matchmaking server needs from a two player game.
// The server never looks inside a move; concrete games live in subpackages.
package game

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alejzeis/rps-arena/common"
)

// ErrUnknownMove is returned by Rules.ParseMove for text that names no move
var ErrUnknownMove = errors.New("unknown move")

// Move is one choice from a game's closed set of moves
type Move interface {
	String() string
}

// Rules creates games of one kind and parses their moves
type Rules interface {
	Name() string
	New(player, opponent uuid.UUID) Game
	ParseMove(raw string) (Move, error)
}

// Game is an in-progress match between two distinct players
type Game interface {
	Players() [2]uuid.UUID
	HasPlayer(id uuid.UUID) bool
	Opponent(id uuid.UUID) (uuid.UUID, bool)
	// SetMove fills the player's slot if it is still empty and reports whether it did.
	SetMove(id uuid.UUID, mv Move) bool
	Ready() bool
	// Resolve returns the finished snapshot once both slots are filled.
	Resolve() (Finished, bool)
	Clone() Game
	// Status renders the in-progress state for one viewer.
	Status(viewer uuid.UUID, viewerName, opponentName string) common.ServerMsg
}

// Outcome is the result of a finished game for one side
type Outcome string

const (
	Win    Outcome = "win"
	Defeat Outcome = "defeat"
	Draw   Outcome = "draw"
)

// Reverse returns the outcome as seen by the other side
func (o Outcome) Reverse() Outcome {
	switch o {
	case Win:
		return Defeat
	case Defeat:
		return Win
	}
	return o
}

// Finished is the immutable snapshot of a fully resolved game.
// Outcome is from Players[0]'s point of view.
type Finished struct {
	Game       string
	Players    [2]uuid.UUID
	Moves      [2]Move
	Outcome    Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Message renders the finished game for viewer, listing viewer's side first
func (f Finished) Message(viewer uuid.UUID, viewerName, opponentName string) common.ServerMsg {
	moves := []string{f.Moves[0].String(), f.Moves[1].String()}
	outcome := f.Outcome
	if viewer == f.Players[1] {
		moves[0], moves[1] = moves[1], moves[0]
		outcome = outcome.Reverse()
	}

	return common.ServerMsg{
		Type:    common.ServerFinished,
		Players: []string{viewerName, opponentName},
		Moves:   moves,
		Outcome: string(outcome),
	}
}

// OutcomeFor returns the outcome for one of the two players
func (f Finished) OutcomeFor(id uuid.UUID) Outcome {
	if id == f.Players[1] {
		return f.Outcome.Reverse()
	}
	return f.Outcome
}
