package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
)

// gameRelay carries intents from the terminal to the server's websocket and pushes
// the server's frames back on messages. messages is closed once the socket is gone.
type gameRelay struct {
	mutex         sync.Mutex
	serverAddress string
	connection    common.MessageConnection

	messages chan common.ServerMsg
}

// websocketAddress turns the REST base URL into the player websocket URL
func websocketAddress(serverURL string) (string, error) {
	serverURL = strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://") + "/ws", nil
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://") + "/ws", nil
	}
	return "", fmt.Errorf("invalid address %q, expected http:// or https://", serverURL)
}

func connectRelay(serverURL string, token string) (*gameRelay, error) {
	address, err := websocketAddress(serverURL)
	if err != nil {
		return nil, err
	}

	provider := &common.WebsocketConnectionProvider{
		Header: http.Header{"Authorization": {"Bearer " + token}},
	}
	return startRelay(provider, address)
}

func startRelay(provider common.MessageConnectionProvider, address string) (*gameRelay, error) {
	connection, err := provider.DialForConnection(address)
	if err != nil {
		log.WithError(err).WithField("address", address).Error("Failed to connect to game server")
		return nil, err
	}

	relay := &gameRelay{
		serverAddress: address,
		connection:    connection,
		messages:      make(chan common.ServerMsg, 16),
	}
	go relay.relayRemoteToLocal()
	return relay, nil
}

func (relay *gameRelay) relayRemoteToLocal() {
	defer close(relay.messages)

	for {
		data, err := relay.connection.ReadMessage()
		if err != nil {
			if !relay.connection.IsClosed() {
				log.WithError(err).WithField("address", relay.serverAddress).Warn("Game server connection lost")
				relay.connection.Close()
			}
			return
		}

		var msg common.ServerMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).WithField("data", string(data)).Warn("Ignoring malformed server message")
			continue
		}
		relay.messages <- msg
	}
}

func (relay *gameRelay) send(msg common.ClientMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	relay.mutex.Lock()
	defer relay.mutex.Unlock()

	return relay.connection.WriteMessage(data)
}

func (relay *gameRelay) shutdown() {
	relay.mutex.Lock()
	defer relay.mutex.Unlock()

	if err := relay.connection.CloseWithMessage("bye"); err != nil && err != common.ErrConnectionClosed {
		log.WithError(err).Debug("Failed to close game server connection cleanly")
		relay.connection.Close()
	}
}
