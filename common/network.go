package common

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when closing a MessageConnection twice
var ErrConnectionClosed = errors.New("connection already closed")

// Represents a connection capable of sending full text messages between each other
// Abstracted so the client can be tested against mocks and fake servers
type MessageConnection interface {
	// Reads a message, blocking
	ReadMessage() ([]byte, error)
	// Sends a message
	WriteMessage(data []byte) error
	// Sends a closing message and closes the connection
	CloseWithMessage(msg string) error
	// Closes the underlying socket
	Close() error
	// Determine if the connection has been closed or not
	IsClosed() bool
}

type WebsocketMessageConnection struct {
	socket *websocket.Conn
	closed bool

	writeMutex    sync.Mutex
	isClosedMutex sync.RWMutex
}

// NewWebsocketMessageConnection wraps an already established websocket
func NewWebsocketMessageConnection(socket *websocket.Conn) *WebsocketMessageConnection {
	return &WebsocketMessageConnection{socket: socket}
}

func (connection *WebsocketMessageConnection) ReadMessage() ([]byte, error) {
	_, data, err := connection.socket.ReadMessage()
	if err != nil && websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		connection.isClosedMutex.Lock()
		connection.closed = true
		connection.isClosedMutex.Unlock()
	}
	return data, err
}

func (connection *WebsocketMessageConnection) WriteMessage(data []byte) error {
	// gorilla allows only one concurrent writer per connection
	connection.writeMutex.Lock()
	defer connection.writeMutex.Unlock()

	return connection.socket.WriteMessage(websocket.TextMessage, data)
}

func (connection *WebsocketMessageConnection) CloseWithMessage(msg string) error {
	connection.writeMutex.Lock()
	err := connection.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg))
	connection.writeMutex.Unlock()
	if err != nil {
		return err
	}
	return connection.Close()
}

func (connection *WebsocketMessageConnection) Close() error {
	connection.isClosedMutex.Lock()
	defer connection.isClosedMutex.Unlock()

	if connection.closed {
		return ErrConnectionClosed
	}
	connection.closed = true
	return connection.socket.Close()
}

func (connection *WebsocketMessageConnection) IsClosed() bool {
	connection.isClosedMutex.RLock()
	defer connection.isClosedMutex.RUnlock()

	return connection.closed
}

// Represents a source for creating MessageConnections to remote addresses
type MessageConnectionProvider interface {
	// Creates and returns a new MessageConnection that is connected to the specified address
	DialForConnection(address string) (MessageConnection, error)
}

// Implements MessageConnectionProvider by dialing websocket connections, sending Header with the handshake
type WebsocketConnectionProvider struct {
	Header http.Header
}

func (provider *WebsocketConnectionProvider) DialForConnection(address string) (MessageConnection, error) {
	webConn, _, err := websocket.DefaultDialer.Dial(address, provider.Header)
	if err != nil {
		return nil, err
	}
	return NewWebsocketMessageConnection(webConn), nil
}
