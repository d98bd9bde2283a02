package playback

import (
	"github.com/osa030/sonora/internal/app/player"
	"github.com/osa030/sonora/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged    EventType = iota // Current track changed (or cleared)
	EventStateChanged                     // Play/pause state changed
	EventQueueChanged                     // Queue contents or order changed
	EventProgress                         // Progress sample published
	EventModeChanged                      // Shuffle, repeat, volume or mute changed
	EventHistoryChanged                   // History log changed
	EventDurationLearned                  // Player measured a duration the library does not have yet
	EventPlayerError                      // Player reported an error
	EventQueueEnded                       // Advance ran past the last track with repeat off
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventProgress:
		return "progress"
	case EventModeChanged:
		return "mode_changed"
	case EventHistoryChanged:
		return "history_changed"
	case EventDurationLearned:
		return "duration_learned"
	case EventPlayerError:
		return "player_error"
	case EventQueueEnded:
		return "queue_ended"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type  EventType
	Track *track.Track     // Current track (nil for some events)
	State State            // Playback state when the event was emitted
	Code  player.ErrorCode // Set for EventPlayerError
}
