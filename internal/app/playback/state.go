// Package playback provides the playback session state machine that keeps the
// external player, the queue, the modes and the history consistent.
package playback

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No current track
	StatePaused               // Track loaded, not playing
	StatePlaying              // Track loaded and confirmed playing by the player
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, st := range []State{StateIdle, StatePaused, StatePlaying} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return errors.Newf("unknown playback state: %q", name)
}
