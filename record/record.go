// Package record persists finished games.
//
// The server calls a Recorder once per resolved session. Recording is best effort:
// a failing Recorder is logged by the caller and never reaches the players.
package record

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/game"
)

// Recorder stores one finished game
type Recorder interface {
	Record(ctx context.Context, finished game.Finished) error
	Close() error
}

// Tally is a user's running win/lose/draw count
type Tally struct {
	User   uuid.UUID
	Wins   int64
	Losses int64
	Draws  int64
}

// Tallier is implemented by recorders that can report a user's results
type Tallier interface {
	Tally(ctx context.Context, user uuid.UUID) (Tally, error)
}

// Result is the JSON representation of a finished game, shared by recorders that serialize
type Result struct {
	Game       string    `json:"game"`
	Player1    uuid.UUID `json:"player1"`
	Player2    uuid.UUID `json:"player2"`
	Move1      string    `json:"move1"`
	Move2      string    `json:"move2"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// NewResult flattens a finished game
func NewResult(finished game.Finished) Result {
	return Result{
		Game:       finished.Game,
		Player1:    finished.Players[0],
		Player2:    finished.Players[1],
		Move1:      finished.Moves[0].String(),
		Move2:      finished.Moves[1].String(),
		Outcome:    string(finished.Outcome),
		StartedAt:  finished.StartedAt.UTC(),
		FinishedAt: finished.FinishedAt.UTC(),
	}
}

// LogRecorder only writes results to the log
type LogRecorder struct{}

func (LogRecorder) Record(_ context.Context, finished game.Finished) error {
	result := NewResult(finished)
	log.WithFields(log.Fields{
		"game":    result.Game,
		"player1": result.Player1,
		"player2": result.Player2,
		"move1":   result.Move1,
		"move2":   result.Move2,
		"outcome": result.Outcome,
	}).Info("Game finished")
	return nil
}

func (LogRecorder) Close() error {
	return nil
}
