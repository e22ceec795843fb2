package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("outbound buffer full")
)

// playerConnection is one websocket of a logged in user.
// A reader goroutine turns frames into intents; a writer goroutine drains the outbound channel.
type playerConnection struct {
	id     uuid.UUID
	user   uuid.UUID
	name   string
	socket *websocket.Conn

	send   chan []byte
	closed bool
	mutex  sync.Mutex

	ctx          context.Context
	registry     *Registry
	orchestrator *Orchestrator
}

func newPlayerConnection(ctx context.Context, user uuid.UUID, name string, socket *websocket.Conn, registry *Registry, orchestrator *Orchestrator) *playerConnection {
	return &playerConnection{
		id:           uuid.New(),
		user:         user,
		name:         name,
		socket:       socket,
		send:         make(chan []byte, sendBufferSize),
		ctx:          ctx,
		registry:     registry,
		orchestrator: orchestrator,
	}
}

func (c *playerConnection) ID() uuid.UUID {
	return c.id
}

// Send queues a frame without blocking. A slow reader that fills its buffer is cut off.
func (c *playerConnection) Send(data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return errConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return errSendBufferFull
	}
}

func (c *playerConnection) close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.closeLocked()
}

func (c *playerConnection) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *playerConnection) start() {
	c.registry.Register(c.user, c.name, c)
	go c.writePump()
	go c.readPump()
}

func (c *playerConnection) readPump() {
	defer func() {
		c.close()
		c.socket.Close()
		c.registry.Unregister(c.user, c.id)

		// Another tab keeps the user in their game
		if !c.registry.IsOnline(c.user) {
			if err := c.orchestrator.Leave(c.user); err != nil {
				log.WithError(err).WithField("user", c.user).Warn("Failed to leave after disconnect")
			}
		}
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.WithError(err).WithFields(log.Fields{
					"user":       c.user,
					"connection": c.id,
				}).Warn("Websocket read failed")
			}
			return
		}

		c.handle(data)
	}
}

func (c *playerConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle runs one client intent and reports its error to this connection only
func (c *playerConnection) handle(data []byte) {
	var msg common.ClientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).WithField("user", c.user).Debug("Invalid client message")
		c.reply(common.ErrorMsg(common.InvalidMove))
		return
	}

	var err error
	switch msg.Type {
	case common.ClientJoin:
		err = c.orchestrator.Join(c.user)
	case common.ClientSubmit:
		mv, parseErr := c.orchestrator.ParseMove(msg.Move)
		if parseErr != nil {
			err = parseErr
			break
		}
		err = c.orchestrator.Submit(c.ctx, c.user, mv)
	case common.ClientLeave:
		err = c.orchestrator.Leave(c.user)
	case common.ClientStats:
		c.reply(common.StatsMsg(c.registry.Online()))
	default:
		err = common.InvalidMove
	}

	if err == nil {
		return
	}

	var gameErr common.GameError
	if !errors.As(err, &gameErr) {
		log.WithError(err).WithFields(log.Fields{
			"user": c.user,
			"type": msg.Type,
		}).Error("Intent failed")
		return
	}
	log.WithError(err).WithFields(log.Fields{
		"user": c.user,
		"type": msg.Type,
	}).Debug("Intent rejected")
	c.reply(common.ErrorMsg(gameErr))
}

func (c *playerConnection) reply(msg common.ServerMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("type", msg.Type).Error("Failed to encode server message")
		return
	}
	if err := c.Send(data); err != nil {
		log.WithError(err).WithField("connection", c.id).Debug("Reply dropped")
	}
}
