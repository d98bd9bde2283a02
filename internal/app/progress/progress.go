package progress

import (
	"encoding/json"
	"time"

	"github.com/osa030/sonora/internal/domain/track"
)

// DefaultNearEnd is how close to the end a track may get before it is
// treated as finished.
const DefaultNearEnd = 500 * time.Millisecond

// Progress is the published playback position.
type Progress struct {
	Current  time.Duration
	Duration time.Duration
}

// Remaining returns the time left, or 0 when the duration is unknown.
func (p Progress) Remaining() time.Duration {
	if p.Duration <= 0 || p.Current >= p.Duration {
		return 0
	}
	return p.Duration - p.Current
}

type wireProgress struct {
	CurrentTimeMs int64 `json:"currentTimeMs"`
	DurationMs    int64 `json:"durationMs"`
}

// MarshalJSON encodes the progress in milliseconds.
func (p Progress) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireProgress{
		CurrentTimeMs: p.Current.Milliseconds(),
		DurationMs:    p.Duration.Milliseconds(),
	})
}

// UnmarshalJSON decodes the millisecond form.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var w wireProgress
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Current = time.Duration(w.CurrentTimeMs) * time.Millisecond
	p.Duration = time.Duration(w.DurationMs) * time.Millisecond
	return nil
}

// Reading is the outcome of one sample.
type Reading struct {
	Progress        Progress
	LearnedDuration time.Duration // Non-zero when the track's stored duration should be updated
	NearEnd         bool          // Position is within the near-end window
}

// Evaluate turns a raw player sample for t into a Reading.
func Evaluate(t track.Track, current, duration, nearEnd time.Duration) Reading {
	if current < 0 {
		current = 0
	}

	var r Reading
	if duration > 0 {
		if t.NeedsDuration() {
			r.LearnedDuration = duration
		}
	} else {
		duration = t.Duration
	}
	if duration > 0 && current > duration {
		current = duration
	}

	r.Progress = Progress{Current: current, Duration: duration}
	r.NearEnd = duration > 0 && current > 0 && duration-current <= nearEnd
	return r
}
