// Package mode holds the user-facing playback modes: shuffle, repeat,
// volume and mute.
package mode

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Repeat is the repeat mode.
type Repeat int

const (
	RepeatNone Repeat = iota // Stop after the last queued track
	RepeatAll                // Wrap to the start of the queue
	RepeatOne                // Replay the current track
)

// String returns the string representation of the repeat mode.
func (r Repeat) String() string {
	switch r {
	case RepeatNone:
		return "none"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows r in the none, all, one cycle.
func (r Repeat) Next() Repeat {
	switch r {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

// ParseRepeat converts a mode name back to a Repeat.
func ParseRepeat(s string) (Repeat, error) {
	switch s {
	case "none", "":
		return RepeatNone, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	default:
		return RepeatNone, errors.Newf("unknown repeat mode %q", s)
	}
}

// MarshalJSON encodes the mode by name.
func (r Repeat) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a mode name.
func (r *Repeat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRepeat(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// DefaultVolume is the volume a new session starts with.
const DefaultVolume = 1.0

// State is the current mode set. The zero value is not ready for use; call
// New.
type State struct {
	Shuffle bool    `json:"shuffle"`
	Repeat  Repeat  `json:"repeat"`
	Volume  float64 `json:"volume"`
	Muted   bool    `json:"muted"`
}

// New returns the default modes: shuffle off, repeat none, full volume, unmuted.
func New() State {
	return State{Volume: DefaultVolume}
}

// SetVolume stores v clamped to [0, 1]. Raising the volume above zero while
// muted also unmutes; the return value reports whether that happened.
func (s *State) SetVolume(v float64) (unmuted bool) {
	s.Volume = clamp(v)
	if s.Volume > 0 && s.Muted {
		s.Muted = false
		return true
	}
	return false
}

// ToggleMute flips the mute flag and returns the new value.
func (s *State) ToggleMute() bool {
	s.Muted = !s.Muted
	return s.Muted
}

// ToggleShuffle flips the shuffle flag and returns the new value.
func (s *State) ToggleShuffle() bool {
	s.Shuffle = !s.Shuffle
	return s.Shuffle
}

// CycleRepeat advances the repeat mode and returns the new value.
func (s *State) CycleRepeat() Repeat {
	s.Repeat = s.Repeat.Next()
	return s.Repeat
}

// PlayerVolume converts the volume to the player's 0..100 scale.
func (s State) PlayerVolume() int {
	return int(s.Volume * 100)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
