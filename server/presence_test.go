package server

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejzeis/rps-arena/common"
)

type mockConn struct {
	id       uuid.UUID
	received [][]byte
	mu       sync.Mutex
	sendErr  error
}

func newMockConn() *mockConn {
	return &mockConn{id: uuid.New()}
}

func (m *mockConn) ID() uuid.UUID { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func (m *mockConn) messages(t *testing.T) []common.ServerMsg {
	t.Helper()

	var msgs []common.ServerMsg
	for _, data := range m.getReceived() {
		var msg common.ServerMsg
		require.NoError(t, json.Unmarshal(data, &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestRegistry_NotifyFansOut(t *testing.T) {
	r := NewRegistry()
	alice, bob := uuid.New(), uuid.New()
	tab1, tab2, other := newMockConn(), newMockConn(), newMockConn()

	r.Register(alice, "alice", tab1)
	r.Register(alice, "alice-second-name", tab2)
	r.Register(bob, "bob", other)

	r.Notify(alice, common.WaitingMsg())

	assert.Len(t, tab1.getReceived(), 1)
	assert.Len(t, tab2.getReceived(), 1)
	assert.Empty(t, other.getReceived())
	assert.Equal(t, []common.ServerMsg{common.WaitingMsg()}, tab1.messages(t))

	name, ok := r.Name(alice)
	require.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Equal(t, 2, r.Online())
}

func TestRegistry_NotifyUnknownUser(t *testing.T) {
	r := NewRegistry()

	assert.NotPanics(t, func() {
		r.Notify(uuid.New(), common.WaitingMsg())
	})
}

func TestRegistry_NotifyPrunesBrokenConnections(t *testing.T) {
	r := NewRegistry()
	alice := uuid.New()
	healthy, broken := newMockConn(), newMockConn()
	broken.sendErr = errors.New("socket gone")

	r.Register(alice, "alice", healthy)
	r.Register(alice, "alice", broken)

	r.Notify(alice, common.WaitingMsg())
	assert.Len(t, healthy.getReceived(), 1)
	assert.True(t, r.IsOnline(alice))

	// The broken connection is no longer registered, so unregistering it changes nothing
	assert.False(t, r.Unregister(alice, broken.ID()))
	assert.True(t, r.IsOnline(alice))
}

func TestRegistry_NotifyPruningLastConnectionTakesUserOffline(t *testing.T) {
	r := NewRegistry()
	alice := uuid.New()
	broken := newMockConn()
	broken.sendErr = errors.New("socket gone")

	r.Register(alice, "alice", broken)
	r.Notify(alice, common.WaitingMsg())

	assert.False(t, r.IsOnline(alice))
	_, ok := r.Name(alice)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Online())
}

func TestRegistry_UnregisterReportsLastConnection(t *testing.T) {
	r := NewRegistry()
	alice := uuid.New()
	tab1, tab2 := newMockConn(), newMockConn()

	r.Register(alice, "alice", tab1)
	r.Register(alice, "alice", tab2)

	assert.False(t, r.Unregister(alice, tab1.ID()))
	assert.True(t, r.IsOnline(alice))

	assert.True(t, r.Unregister(alice, tab2.ID()))
	assert.False(t, r.IsOnline(alice))

	assert.False(t, r.Unregister(alice, tab2.ID()))
}

func TestRegistry_ConcurrentRegisterAndNotify(t *testing.T) {
	r := NewRegistry()
	alice := uuid.New()

	var wg sync.WaitGroup
	conns := make([]*mockConn, 20)
	for i := range conns {
		conns[i] = newMockConn()
		wg.Add(2)
		go func(conn *mockConn) {
			defer wg.Done()
			r.Register(alice, "alice", conn)
		}(conns[i])
		go func() {
			defer wg.Done()
			r.Notify(alice, common.StatsMsg(1))
		}()
	}
	wg.Wait()

	for _, conn := range conns {
		assert.True(t, r.Unregister(alice, conn.ID()) || r.IsOnline(alice))
	}
	assert.False(t, r.IsOnline(alice))
}
