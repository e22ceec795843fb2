package server

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_JoinPairsInArrivalOrder(t *testing.T) {
	q := NewQueue()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	_, ok := q.Join(a)
	assert.False(t, ok)
	assert.True(t, q.Contains(a))

	// a is waiting, b takes a
	opponent, ok := q.Join(b)
	require.True(t, ok)
	assert.Equal(t, a, opponent)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Contains(b))

	_, ok = q.Join(c)
	assert.False(t, ok)
	q.PushFront(d)

	opponent, ok = q.TryTake()
	require.True(t, ok)
	assert.Equal(t, d, opponent)
	opponent, ok = q.TryTake()
	require.True(t, ok)
	assert.Equal(t, c, opponent)

	_, ok = q.TryTake()
	assert.False(t, ok)
}

func TestQueue_JoinNeverReturnsSelf(t *testing.T) {
	q := NewQueue()
	a := uuid.New()

	_, ok := q.Join(a)
	assert.False(t, ok)

	opponent, ok := q.Join(a)
	assert.False(t, ok)
	assert.NotEqual(t, a, opponent)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_RemoveIsIdempotent(t *testing.T) {
	q := NewQueue()
	a, b := uuid.New(), uuid.New()

	q.Join(a)
	q.Remove(b)
	assert.Equal(t, 1, q.Len())

	q.Remove(a)
	q.Remove(a)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Contains(a))
}

func TestQueue_PushFrontSkipsQueuedUser(t *testing.T) {
	q := NewQueue()
	a := uuid.New()

	q.PushFront(a)
	q.PushFront(a)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ConcurrentJoinsPairEveryone(t *testing.T) {
	q := NewQueue()

	const users = 100
	var (
		wg      sync.WaitGroup
		mutex   sync.Mutex
		matched = make(map[uuid.UUID]int)
	)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := uuid.New()
			if opponent, ok := q.Join(user); ok {
				mutex.Lock()
				matched[user]++
				matched[opponent]++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, q.Len())
	assert.Len(t, matched, users)
	for _, count := range matched {
		assert.Equal(t, 1, count)
	}
}
