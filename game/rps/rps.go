// Package rps implements rock, paper, scissors on top of the game package.
package rps

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejzeis/rps-arena/common"
	"github.com/alejzeis/rps-arena/game"
)

// Move is one of Rock, Paper or Scissors
type Move uint8

const (
	Rock Move = iota + 1
	Paper
	Scissors
)

func (m Move) String() string {
	switch m {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	}
	return fmt.Sprintf("Move(%d)", uint8(m))
}

// beats reports whether m wins against other
func (m Move) beats(other Move) bool {
	return (m == Rock && other == Scissors) ||
		(m == Paper && other == Rock) ||
		(m == Scissors && other == Paper)
}

// Judge returns the outcome of a against b from a's point of view
func Judge(a, b Move) game.Outcome {
	switch {
	case a.beats(b):
		return game.Win
	case b.beats(a):
		return game.Defeat
	}
	return game.Draw
}

// Rules implements game.Rules for rock, paper, scissors
type Rules struct {
	// Now is used for timestamps, defaults to time.Now
	Now func() time.Time
}

func (r Rules) Name() string {
	return "rps"
}

func (r Rules) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Rules) New(player, opponent uuid.UUID) game.Game {
	return &Game{
		players:   [2]uuid.UUID{player, opponent},
		startedAt: r.now(),
		now:       r.now,
	}
}

func (r Rules) ParseMove(raw string) (game.Move, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rock":
		return Rock, nil
	case "paper":
		return Paper, nil
	case "scissors":
		return Scissors, nil
	}
	return nil, fmt.Errorf("%w: %q", game.ErrUnknownMove, raw)
}

// Game is a single round of rock, paper, scissors
type Game struct {
	players   [2]uuid.UUID
	moves     [2]Move // zero means not submitted yet
	startedAt time.Time
	now       func() time.Time
}

func (g *Game) Players() [2]uuid.UUID {
	return g.players
}

func (g *Game) index(id uuid.UUID) int {
	switch id {
	case g.players[0]:
		return 0
	case g.players[1]:
		return 1
	}
	return -1
}

func (g *Game) HasPlayer(id uuid.UUID) bool {
	return g.index(id) >= 0
}

func (g *Game) Opponent(id uuid.UUID) (uuid.UUID, bool) {
	i := g.index(id)
	if i < 0 {
		return uuid.Nil, false
	}
	return g.players[1-i], true
}

func (g *Game) SetMove(id uuid.UUID, mv game.Move) bool {
	i := g.index(id)
	if i < 0 || g.moves[i] != 0 {
		return false
	}
	m, ok := mv.(Move)
	if !ok || m < Rock || m > Scissors {
		return false
	}
	g.moves[i] = m
	return true
}

func (g *Game) Ready() bool {
	return g.moves[0] != 0 && g.moves[1] != 0
}

func (g *Game) Resolve() (game.Finished, bool) {
	if !g.Ready() {
		return game.Finished{}, false
	}
	return game.Finished{
		Game:       Rules{}.Name(),
		Players:    g.players,
		Moves:      [2]game.Move{g.moves[0], g.moves[1]},
		Outcome:    Judge(g.moves[0], g.moves[1]),
		StartedAt:  g.startedAt,
		FinishedAt: g.now(),
	}, true
}

func (g *Game) Clone() game.Game {
	clone := *g
	return &clone
}

func (g *Game) Status(viewer uuid.UUID, viewerName, opponentName string) common.ServerMsg {
	if finished, ok := g.Resolve(); ok {
		return finished.Message(viewer, viewerName, opponentName)
	}

	submitted := []bool{g.moves[0] != 0, g.moves[1] != 0}
	if g.index(viewer) == 1 {
		submitted[0], submitted[1] = submitted[1], submitted[0]
	}
	return common.ServerMsg{
		Type:      common.ServerGame,
		Players:   []string{viewerName, opponentName},
		Submitted: submitted,
	}
}
