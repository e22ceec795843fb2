package server

import (
	"sync"

	"github.com/google/uuid"
)

// Queue holds the users waiting for an opponent, oldest first.
// It never checks who is online; the Orchestrator decides whether a popped user is still usable.
type Queue struct {
	waiting []uuid.UUID
	mutex   sync.Mutex
}

// NewQueue returns an empty matchmaking queue
func NewQueue() *Queue {
	return &Queue{}
}

// Contains reports whether user is currently waiting
func (q *Queue) Contains(user uuid.UUID) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.indexOf(user) >= 0
}

// Join pops the head of the queue as an opponent for user, or appends user when nobody waits.
// The caller creates the session; user is not queued when an opponent is returned.
func (q *Queue) Join(user uuid.UUID) (uuid.UUID, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.indexOf(user) >= 0 {
		return uuid.Nil, false
	}
	if len(q.waiting) > 0 {
		return q.popLocked(), true
	}
	q.waiting = append(q.waiting, user)
	return uuid.Nil, false
}

// TryTake unconditionally pops the head of the queue.
// It is kept as part of the queue's API and used only by tests; matching goes through Join.
func (q *Queue) TryTake() (uuid.UUID, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.waiting) == 0 {
		return uuid.Nil, false
	}
	return q.popLocked(), true
}

// PushFront puts user back at the head of the queue, no-op if already waiting
func (q *Queue) PushFront(user uuid.UUID) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.indexOf(user) >= 0 {
		return
	}
	q.waiting = append([]uuid.UUID{user}, q.waiting...)
}

// Remove drops user from the queue, no-op if absent
func (q *Queue) Remove(user uuid.UUID) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if i := q.indexOf(user); i >= 0 {
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
	}
}

// Len returns the number of waiting users
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return len(q.waiting)
}

func (q *Queue) popLocked() uuid.UUID {
	head := q.waiting[0]
	q.waiting[0] = uuid.Nil
	q.waiting = q.waiting[1:]
	return head
}

func (q *Queue) indexOf(user uuid.UUID) int {
	for i, id := range q.waiting {
		if id == user {
			return i
		}
	}
	return -1
}
