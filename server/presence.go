package server

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
)

// Connection is one live transport to a user, e.g. a browser tab
type Connection interface {
	ID() uuid.UUID
	Send(data []byte) error
}

type presence struct {
	name        string
	connections map[uuid.UUID]Connection
}

// Registry tracks which users are reachable, through which connections, and under which display name.
// A user is present exactly while at least one of their connections is registered.
type Registry struct {
	users map[uuid.UUID]*presence
	mutex sync.RWMutex
}

// NewRegistry returns an empty presence registry
func NewRegistry() *Registry {
	return &Registry{users: make(map[uuid.UUID]*presence)}
}

// Register adds a connection for user. The display name is taken from the first connection.
func (r *Registry) Register(user uuid.UUID, name string, conn Connection) {
	r.mutex.Lock()
	p, exists := r.users[user]
	if !exists {
		p = &presence{name: name, connections: make(map[uuid.UUID]Connection)}
		r.users[user] = p
	}
	p.connections[conn.ID()] = conn
	count := len(p.connections)
	r.mutex.Unlock()

	log.WithFields(log.Fields{
		"user":        user,
		"name":        name,
		"connection":  conn.ID(),
		"connections": count,
	}).Info("Connection registered")
}

// Unregister removes a connection and reports whether it was the user's last one
func (r *Registry) Unregister(user uuid.UUID, connID uuid.UUID) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.removeLocked(user, connID)
}

// IsOnline reports whether user has at least one live connection
func (r *Registry) IsOnline(user uuid.UUID) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.users[user]
	return exists
}

// Name returns the display name of a reachable user
func (r *Registry) Name(user uuid.UUID) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, exists := r.users[user]
	if !exists {
		return "", false
	}
	return p.name, true
}

// Online returns the number of reachable users
func (r *Registry) Online() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.users)
}

// Notify sends msg to every live connection of user.
// Connections that fail to accept the frame are pruned and do not affect the others.
func (r *Registry) Notify(user uuid.UUID, msg common.ServerMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("type", msg.Type).Error("Failed to encode server message")
		return
	}

	r.mutex.RLock()
	p, exists := r.users[user]
	var targets []Connection
	if exists {
		targets = make([]Connection, 0, len(p.connections))
		for _, conn := range p.connections {
			targets = append(targets, conn)
		}
	}
	r.mutex.RUnlock()

	var broken []uuid.UUID
	for _, conn := range targets {
		if err := conn.Send(data); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user":       user,
				"connection": conn.ID(),
			}).Warn("Dropping connection that failed to accept a message")
			broken = append(broken, conn.ID())
		}
	}

	if len(broken) > 0 {
		r.mutex.Lock()
		for _, id := range broken {
			r.removeLocked(user, id)
		}
		r.mutex.Unlock()
	}
}

func (r *Registry) removeLocked(user uuid.UUID, connID uuid.UUID) bool {
	p, exists := r.users[user]
	if !exists {
		return false
	}
	if _, ok := p.connections[connID]; !ok {
		return false
	}
	delete(p.connections, connID)
	if len(p.connections) > 0 {
		return false
	}
	delete(r.users, user)
	log.WithField("user", user).Info("User went offline")
	return true
}
