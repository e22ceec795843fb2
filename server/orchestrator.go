package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
	"github.com/alejzeis/rps-arena/game"
	"github.com/alejzeis/rps-arena/record"
)

// DefaultRecordTimeout bounds a single call to the recorder
const DefaultRecordTimeout = 5 * time.Second

// Notifier pushes messages to users and knows who is reachable.
// The Registry is the production implementation.
type Notifier interface {
	Notify(user uuid.UUID, msg common.ServerMsg)
	Name(user uuid.UUID) (string, bool)
}

// Orchestrator runs the join, submit and leave workflows on top of the queue, store and notifier
type Orchestrator struct {
	queue    *Queue
	store    *Store
	notifier Notifier
	recorder record.Recorder

	// RecordTimeout bounds each recorder call, defaults to DefaultRecordTimeout
	RecordTimeout time.Duration
}

// NewOrchestrator wires the workflows together. A nil recorder only logs results.
func NewOrchestrator(queue *Queue, store *Store, notifier Notifier, recorder record.Recorder) *Orchestrator {
	if recorder == nil {
		recorder = record.LogRecorder{}
	}
	return &Orchestrator{
		queue:         queue,
		store:         store,
		notifier:      notifier,
		recorder:      recorder,
		RecordTimeout: DefaultRecordTimeout,
	}
}

// Join pairs user with the oldest reachable waiting user, or queues them.
func (o *Orchestrator) Join(user uuid.UUID) error {
	if o.store.HasActiveSession(user) {
		if opponent, ok := o.store.OpponentOf(user); ok {
			if _, online := o.notifier.Name(opponent); online {
				o.resendState(user)
				return common.AlreadyInGame
			}
		}
		// The opponent is gone, the session is stale
		_ = o.store.Drop(user)
	}

	for {
		// Join pops the next candidate or, once the queue is empty, parks user in one step
		candidate, ok := o.queue.Join(user)
		if !ok {
			o.notifier.Notify(user, common.WaitingMsg())
			return nil
		}
		if candidate == user {
			continue
		}
		if _, online := o.notifier.Name(candidate); !online {
			log.WithField("user", candidate).Debug("Discarding offline candidate")
			continue
		}

		session, err := o.store.Start(user, candidate)
		if err != nil {
			if o.store.HasActiveSession(user) {
				// Another connection of user won a match first; give the candidate their place back
				o.queue.PushFront(candidate)
				return common.AlreadyInGame
			}
			// The candidate got matched elsewhere while waiting
			log.WithError(err).WithField("user", candidate).Debug("Discarding busy candidate")
			continue
		}

		userName, ok := o.notifier.Name(user)
		if !ok {
			_ = o.store.Drop(user)
			return common.Disconnected
		}
		candidateName, ok := o.notifier.Name(candidate)
		if !ok {
			_ = o.store.Drop(user)
			continue
		}

		log.WithFields(log.Fields{
			"session":  session.ID,
			"player1":  user,
			"player2":  candidate,
			"game":     o.store.rules.Name(),
			"waiting":  o.queue.Len(),
			"sessions": o.store.Len(),
		}).Info("Matched players")

		o.notifier.Notify(user, common.MatchedMsg(int(session.ID), candidateName))
		o.notifier.Notify(candidate, common.MatchedMsg(int(session.ID), userName))
		return nil
	}
}

// Submit records user's move, resolving and recording the game once both moves are in
func (o *Orchestrator) Submit(ctx context.Context, user uuid.UUID, mv game.Move) error {
	session, err := o.store.SubmitMove(user, mv)
	if err != nil {
		return err
	}

	opponent, ok := o.store.OpponentOf(user)
	if !ok {
		return common.NotFound
	}

	userName, userOnline := o.notifier.Name(user)
	opponentName, opponentOnline := o.notifier.Name(opponent)
	if !userOnline || !opponentOnline {
		if err := o.store.Drop(user); err != nil {
			// Resolved or abandoned meanwhile, the other path already told everyone
			return err
		}
		if opponentOnline {
			o.notifier.Notify(opponent, common.ErrorMsg(common.Disconnected))
		}
		return common.Disconnected
	}

	finished, resolved, err := o.store.TryResolve(user, func(current Session) {
		o.notifier.Notify(user, current.Game.Status(user, userName, opponentName))
		o.notifier.Notify(opponent, current.Game.Status(opponent, opponentName, userName))
	})
	if err != nil {
		// The opponent's submission resolved it or a leave dropped it after our move went in
		return err
	}
	if !resolved {
		return nil
	}

	o.record(ctx, session.ID, finished)

	o.notifier.Notify(user, finished.Message(user, userName, opponentName))
	o.notifier.Notify(opponent, finished.Message(opponent, opponentName, userName))
	return nil
}

// Leave abandons user's session, telling the opponent, or takes user out of the queue
func (o *Orchestrator) Leave(user uuid.UUID) error {
	if o.store.HasActiveSession(user) {
		opponent, hasOpponent := o.store.OpponentOf(user)
		if err := o.store.Drop(user); err != nil {
			if errors.Is(err, common.NotFound) {
				// Resolved or swept concurrently, nothing left to abandon
				return nil
			}
			return err
		}
		if hasOpponent {
			o.notifier.Notify(opponent, common.ErrorMsg(common.Disconnected))
		}
		log.WithFields(log.Fields{
			"user":     user,
			"opponent": opponent,
		}).Info("Player left a session")
		return nil
	}

	o.queue.Remove(user)
	return nil
}

// resendState pushes user's current session state to all of user's connections
func (o *Orchestrator) resendState(user uuid.UUID) {
	session, ok := o.store.GetSession(user)
	if !ok {
		return
	}
	opponent, _ := session.Game.Opponent(user)
	userName, _ := o.notifier.Name(user)
	opponentName, _ := o.notifier.Name(opponent)

	o.notifier.Notify(user, common.MatchedMsg(int(session.ID), opponentName))
	o.notifier.Notify(user, session.Game.Status(user, userName, opponentName))
}

func (o *Orchestrator) record(ctx context.Context, id SessionID, finished game.Finished) {
	timeout := o.RecordTimeout
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.recorder.Record(ctx, finished); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"session": id,
			"player1": finished.Players[0],
			"player2": finished.Players[1],
		}).Error("Failed to record finished game")
	}
}

// ParseMove converts client text into a move of the store's game, failing with InvalidMove
func (o *Orchestrator) ParseMove(raw string) (game.Move, error) {
	mv, err := o.store.rules.ParseMove(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, common.InvalidMove)
	}
	return mv, nil
}
