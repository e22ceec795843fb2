// Package client is an interactive terminal client for the game server.
package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
)

const usage = `Commands:
  connect [URL] [TOKEN]   connect to a server, e.g. connect http://localhost:8080 eyJ...
  disconnect              close the connection
  join                    look for an opponent
  rock | paper | scissors submit a move
  leave                   leave the queue or abandon the current game
  stats                   number of players online
  serverstats             players online, waiting and playing, over REST
  results [USER ID]       win/loss/draw tally of a player
  quit                    exit`

// console serializes output from the prompt and the relay goroutine
type console struct {
	out   io.Writer
	mutex sync.Mutex
}

func (c *console) println(a ...interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprintln(c.out, a...)
}

type session struct {
	console *console
	rest    *restClient
	relay   *gameRelay
	done    chan struct{}
}

// RunClient is the main method for running the client code, it returns once in is exhausted or quit is typed
func RunClient(in io.Reader, out io.Writer) {
	s := &session{console: &console{out: out}}
	defer s.disconnect()

	log.Info("Client ready for commands.")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		if !s.execute(strings.Fields(scanner.Text())) {
			return
		}
	}
}

// execute runs one command line, returning false when the client should exit
func (s *session) execute(args []string) bool {
	if len(args) == 0 {
		return true
	}

	switch command := strings.ToLower(args[0]); command {
	case "quit", "exit":
		return false
	case "help":
		s.console.println(usage)
	case "connect":
		if len(args) != 3 {
			log.Error("Usage: \"connect [URL] [TOKEN]\"")
			return true
		}
		s.connect(args[1], args[2])
	case "disconnect":
		s.disconnect()
	case "join":
		s.send(common.ClientMsg{Type: common.ClientJoin})
	case "leave":
		s.send(common.ClientMsg{Type: common.ClientLeave})
	case "stats":
		s.send(common.ClientMsg{Type: common.ClientStats})
	case "serverstats":
		s.serverStats()
	case "rock", "paper", "scissors":
		s.send(common.ClientMsg{Type: common.ClientSubmit, Move: command})
	case "results":
		if len(args) != 2 {
			log.Error("Usage: \"results [USER ID]\"")
			return true
		}
		s.results(args[1])
	default:
		log.WithField("command", command).Error("Unknown command, type \"help\" for a list")
	}
	return true
}

func (s *session) connect(serverURL string, token string) {
	if s.relay != nil {
		log.Warn("Already connected, disconnect first")
		return
	}

	rest := createRestClient(serverURL)
	if err := rest.checkServer(); err != nil {
		log.WithError(err).WithField("url", serverURL).Error("Failed to connect")
		return
	}

	relay, err := connectRelay(serverURL, token)
	if err != nil {
		return
	}

	s.rest = rest
	s.relay = relay
	s.done = make(chan struct{})
	go s.printMessages(relay, s.done)

	log.WithField("url", serverURL).Info("Successfully connected to server.")
}

func (s *session) disconnect() {
	if s.relay == nil {
		return
	}

	s.relay.shutdown()
	<-s.done
	s.relay = nil
	s.rest = nil
	log.Info("Disconnected from server.")
}

func (s *session) send(msg common.ClientMsg) {
	if s.relay == nil {
		log.Error("Not connected, use \"connect [URL] [TOKEN]\" first")
		return
	}
	if err := s.relay.send(msg); err != nil {
		log.WithError(err).WithField("type", msg.Type).Error("Failed to send to server")
	}
}

func (s *session) results(user string) {
	if s.rest == nil {
		log.Error("Not connected, use \"connect [URL] [TOKEN]\" first")
		return
	}
	tally, err := s.rest.results(user)
	if err != nil {
		return
	}
	s.console.println(fmt.Sprintf("%s: %d wins, %d losses, %d draws", tally.User, tally.Wins, tally.Losses, tally.Draws))
}

func (s *session) serverStats() {
	if s.rest == nil {
		log.Error("Not connected, use \"connect [URL] [TOKEN]\" first")
		return
	}
	stats, err := s.rest.stats()
	if err != nil {
		return
	}
	s.console.println(fmt.Sprintf("%d online, %d waiting, %d in games", stats.Online, stats.Waiting, stats.Sessions))
}

func (s *session) printMessages(relay *gameRelay, done chan struct{}) {
	defer close(done)

	for msg := range relay.messages {
		s.console.println(formatMessage(msg))
	}
	s.console.println("Connection to server closed.")
}

// formatMessage renders a server frame for the terminal
func formatMessage(msg common.ServerMsg) string {
	switch msg.Type {
	case common.ServerWaiting:
		return "Waiting for an opponent..."
	case common.ServerMatched:
		if msg.SessionID != nil {
			return fmt.Sprintf("Matched against %s (game #%d)", msg.Opponent, *msg.SessionID)
		}
		return "Matched against " + msg.Opponent
	case common.ServerGame:
		if len(msg.Players) != 2 || len(msg.Submitted) != 2 {
			break
		}
		return fmt.Sprintf("You: %s, %s: %s", submittedText(msg.Submitted[0]), msg.Players[1], submittedText(msg.Submitted[1]))
	case common.ServerFinished:
		if len(msg.Players) != 2 || len(msg.Moves) != 2 {
			break
		}
		return fmt.Sprintf("You played %s, %s played %s: %s", msg.Moves[0], msg.Players[1], msg.Moves[1], msg.Outcome)
	case common.ServerError:
		if msg.Error != nil {
			return "Error: " + msg.Error.String()
		}
	case common.ServerStats:
		if msg.Online != nil {
			return fmt.Sprintf("%d players online", *msg.Online)
		}
	}
	return fmt.Sprintf("Unrecognized message %q", msg.Type)
}

func submittedText(submitted bool) string {
	if submitted {
		return "submitted"
	}
	return "thinking"
}
