package common

// ClientMsgType identifies an intent sent by a player over the websocket
type ClientMsgType string

const (
	ClientJoin   ClientMsgType = "join"
	ClientSubmit ClientMsgType = "submit"
	ClientLeave  ClientMsgType = "leave"
	ClientStats  ClientMsgType = "stats"
)

// ClientMsg is a JSON text frame received from a player
type ClientMsg struct {
	Type ClientMsgType `json:"type"`
	Move string        `json:"move,omitempty"`
}

// ServerMsgType identifies a frame pushed to a player
type ServerMsgType string

const (
	ServerWaiting  ServerMsgType = "waiting"
	ServerMatched  ServerMsgType = "matched"
	ServerGame     ServerMsgType = "game"
	ServerFinished ServerMsgType = "finished"
	ServerError    ServerMsgType = "error"
	ServerStats    ServerMsgType = "stats"
)

// ServerMsg is a JSON text frame sent to every live connection of a player.
// Two element arrays are always ordered viewer first.
type ServerMsg struct {
	Type      ServerMsgType `json:"type"`
	SessionID *int          `json:"sessionId,omitempty"`
	Opponent  string        `json:"opponent,omitempty"`
	Players   []string      `json:"players,omitempty"`
	Submitted []bool        `json:"submitted,omitempty"`
	Moves     []string      `json:"moves,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
	Error     *GameError    `json:"error,omitempty"`
	Online    *int          `json:"online,omitempty"`
}

// WaitingMsg tells a player they are queued for an opponent
func WaitingMsg() ServerMsg {
	return ServerMsg{Type: ServerWaiting}
}

// MatchedMsg tells a player who they were paired with
func MatchedMsg(sessionID int, opponent string) ServerMsg {
	return ServerMsg{Type: ServerMatched, SessionID: &sessionID, Opponent: opponent}
}

// ErrorMsg wraps a GameError into a frame
func ErrorMsg(e GameError) ServerMsg {
	return ServerMsg{Type: ServerError, Error: &e}
}

// StatsMsg reports the number of users currently online
func StatsMsg(online int) ServerMsg {
	return ServerMsg{Type: ServerStats, Online: &online}
}
