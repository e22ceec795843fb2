package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
	"github.com/alejzeis/rps-arena/game"
)

const (
	// DefaultSessionMaxAge is how long a session may live before the sweeper removes it
	DefaultSessionMaxAge = 2 * time.Minute
	// DefaultSweepInterval is how often the sweeper runs
	DefaultSweepInterval = 30 * time.Second
)

// SessionID identifies a slot in the session pool. Freed slots are reused.
type SessionID int

// Session is a snapshot of one active game, safe to read without holding the store's lock
type Session struct {
	ID        SessionID
	Game      game.Game
	CreatedAt time.Time
}

// Store owns every in-progress session.
// The pool and the player map are guarded by a single mutex so a user is mapped
// exactly when they are one of the two players of the session in that slot.
type Store struct {
	rules  game.Rules
	maxAge time.Duration
	now    func() time.Time

	mutex   sync.Mutex
	pool    []*Session // nil entries are free slots
	free    []SessionID
	players map[uuid.UUID]SessionID
	active  int

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewStore creates an empty store creating games with rules.
// Sessions older than maxAge are removed by the sweeper; zero means DefaultSessionMaxAge.
func NewStore(rules game.Rules, maxAge time.Duration) *Store {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &Store{
		rules:   rules,
		maxAge:  maxAge,
		now:     time.Now,
		players: make(map[uuid.UUID]SessionID),
	}
}

// HasActiveSession reports whether user is a player of a live session
func (s *Store) HasActiveSession(user uuid.UUID) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, exists := s.players[user]
	return exists
}

// GetSession returns a snapshot of user's session
func (s *Store) GetSession(user uuid.UUID) (Session, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session := s.lookupLocked(user)
	if session == nil {
		return Session{}, false
	}
	return snapshot(session), true
}

// Start allocates a session for two users with empty move slots.
// It fails with AlreadyInGame if either user already has a session, so no mapping is ever overwritten.
func (s *Store) Start(user, opponent uuid.UUID) (Session, error) {
	if user == opponent {
		return Session{}, fmt.Errorf("start session for %s against itself: %w", user, common.AlreadyInGame)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, id := range [2]uuid.UUID{user, opponent} {
		if _, exists := s.players[id]; exists {
			return Session{}, fmt.Errorf("start session for %s: %w", id, common.AlreadyInGame)
		}
	}

	session := &Session{
		Game:      s.rules.New(user, opponent),
		CreatedAt: s.now(),
	}
	if n := len(s.free); n > 0 {
		session.ID = s.free[n-1]
		s.free = s.free[:n-1]
		s.pool[session.ID] = session
	} else {
		session.ID = SessionID(len(s.pool))
		s.pool = append(s.pool, session)
	}
	s.players[user] = session.ID
	s.players[opponent] = session.ID
	s.active++

	return snapshot(session), nil
}

// SubmitMove fills user's move slot if it is still empty and returns the updated snapshot
func (s *Store) SubmitMove(user uuid.UUID, mv game.Move) (Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session := s.lookupLocked(user)
	if session == nil {
		return Session{}, common.NotFound
	}
	session.Game.SetMove(user, mv)
	return snapshot(session), nil
}

// OpponentOf returns the other player of user's session
func (s *Store) OpponentOf(user uuid.UUID) (uuid.UUID, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session := s.lookupLocked(user)
	if session == nil {
		return uuid.Nil, false
	}
	return session.Game.Opponent(user)
}

// Drop removes user's session together with both player mappings
func (s *Store) Drop(user uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session := s.lookupLocked(user)
	if session == nil {
		return common.NotFound
	}
	s.removeLocked(session)
	return nil
}

// TryResolve removes user's session and returns its result if both moves are in.
// It fails with NotFound once the session is gone, resolved or dropped by someone else.
// A session that is not ready is left untouched and pending, if set, runs with a fresh
// snapshot before the lock is released, so whatever it sends is ordered before the
// resolution of the same session. pending must not call back into the Store.
func (s *Store) TryResolve(user uuid.UUID, pending func(Session)) (game.Finished, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session := s.lookupLocked(user)
	if session == nil {
		return game.Finished{}, false, common.NotFound
	}
	finished, ok := session.Game.Resolve()
	if !ok {
		if pending != nil {
			pending(snapshot(session))
		}
		return game.Finished{}, false, nil
	}
	s.removeLocked(session)
	return finished, true, nil
}

// SweepStale removes every session older than the store's max age, finished or not.
// Affected players are not notified.
func (s *Store) SweepStale() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, session := range s.pool {
		if session != nil && !session.CreatedAt.After(cutoff) {
			s.removeLocked(session)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.active
}

// RunSweeper starts the background task calling SweepStale every interval until Close.
// Zero means DefaultSweepInterval. Calling it twice is a no-op.
func (s *Store) RunSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s.mutex.Lock()
	if s.stopSweep != nil {
		s.mutex.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopSweep, s.sweepDone = stop, done
	s.mutex.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if removed := s.SweepStale(); removed > 0 {
					log.WithFields(log.Fields{
						"removed": removed,
						"maxAge":  s.maxAge,
					}).Info("Swept stale sessions")
				}
			}
		}
	}()
}

// Close stops the sweeper and waits for it to exit
func (s *Store) Close() {
	s.mutex.Lock()
	stop, done := s.stopSweep, s.sweepDone
	s.stopSweep, s.sweepDone = nil, nil
	s.mutex.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (s *Store) lookupLocked(user uuid.UUID) *Session {
	id, exists := s.players[user]
	if !exists {
		return nil
	}
	return s.pool[id]
}

func (s *Store) removeLocked(session *Session) {
	for _, id := range session.Game.Players() {
		delete(s.players, id)
	}
	s.pool[session.ID] = nil
	s.free = append(s.free, session.ID)
	s.active--
}

func snapshot(session *Session) Session {
	return Session{
		ID:        session.ID,
		Game:      session.Game.Clone(),
		CreatedAt: session.CreatedAt,
	}
}
