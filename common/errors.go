package common

import (
	"encoding/json"
	"fmt"
)

// GameError is one of the recoverable failures an intent can report back to a player.
// Values are comparable, so errors.Is matches them through fmt.Errorf wrapping.
type GameError uint8

const (
	// NotFound means an expected session or opponent does not exist
	NotFound GameError = iota + 1
	// InvalidMove means the client sent input that could not be understood
	InvalidMove
	// Disconnected means a required participant is no longer reachable
	Disconnected
	// AlreadyInGame means the player asked to join while a reachable session exists
	AlreadyInGame
)

var gameErrorNames = map[GameError]string{
	NotFound:      "NotFound",
	InvalidMove:   "InvalidMove",
	Disconnected:  "Disconnected",
	AlreadyInGame: "AlreadyInGame",
}

func (e GameError) Error() string {
	return e.String()
}

func (e GameError) String() string {
	if name, ok := gameErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("GameError(%d)", uint8(e))
}

// ParseGameError maps a wire name back to its GameError.
func ParseGameError(name string) (GameError, bool) {
	for e, n := range gameErrorNames {
		if n == name {
			return e, true
		}
	}
	return 0, false
}

func (e GameError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *GameError) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseGameError(name)
	if !ok {
		return fmt.Errorf("unknown game error %q", name)
	}
	*e = parsed
	return nil
}
