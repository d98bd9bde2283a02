// Package player defines the contract for the external media player the
// playback session drives.
package player

import "time"

// Adapter wraps an embedded player that executes transport commands
// asynchronously and reports state changes through Events.
//
// LoadTrack is idempotent for an already loaded id; callers check LoadedID
// before reissuing to avoid restarting the track. Commands issued before the
// Ready event must be dropped or queued by the caller.
type Adapter interface {
	LoadTrack(id string)
	Play()
	Pause()
	Stop()
	SeekTo(position time.Duration)
	SetVolume(volume int) // 0..100
	Mute()
	Unmute()

	CurrentTime() time.Duration
	Duration() time.Duration
	State() State
	LoadedID() string

	Events() <-chan Event
}

// ReadyReporter is implemented by adapters whose readiness outlives the
// controller driving them. A controller created on a ready adapter does not
// wait for another EventReady.
type ReadyReporter interface {
	Ready() bool
}

// State is the transport state reported by the player.
// Values follow the embedded player's numeric codes.
type State int

const (
	StateUnstarted State = -1
	StateEnded     State = 0
	StatePlaying   State = 1
	StatePaused    State = 2
	StateBuffering State = 3
	StateCued      State = 5
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "unknown"
	}
}

// ErrorCode is an error code reported by the player.
type ErrorCode int

const (
	ErrInvalidParam       ErrorCode = 2
	ErrHTML5              ErrorCode = 5
	ErrVideoNotFound      ErrorCode = 100
	ErrEmbedNotAllowed    ErrorCode = 101
	ErrEmbedNotAllowedAlt ErrorCode = 150
)

// String returns a human readable description of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidParam:
		return "invalid parameter"
	case ErrHTML5:
		return "html5 player error"
	case ErrVideoNotFound:
		return "video not found"
	case ErrEmbedNotAllowed, ErrEmbedNotAllowedAlt:
		return "embedding not allowed"
	default:
		return "unknown player error"
	}
}

// EventType represents a player event type.
type EventType int

const (
	EventReady        EventType = iota // Player is ready to accept commands
	EventStateChanged                  // Transport state changed
	EventError                         // Player reported an error
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification from the player.
type Event struct {
	Type  EventType
	State State     // Set for EventStateChanged
	Code  ErrorCode // Set for EventError
}
