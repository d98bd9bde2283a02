// Package progress provides the periodic progress sampler that runs while a
// track is playing.
package progress

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// DefaultInterval is the nominal sampling period.
const DefaultInterval = 500 * time.Millisecond

// Tick is emitted once per sampling period while the sampler runs.
type Tick struct {
	TrackID string
	Seq     uint64 // Run generation the tick belongs to
}

// Sampler emits ticks for the currently playing track. It never reads the
// player itself; the consumer samples on each tick.
type Sampler struct {
	mu       sync.Mutex
	interval time.Duration
	cancel   func()
	trackID  string
	seq      uint64
	running  bool
	ticks    chan Tick
}

// NewSampler creates a stopped sampler.
func NewSampler(interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{
		interval: interval,
		ticks:    make(chan Tick, 1),
	}
}

// Ticks returns the tick channel.
func (s *Sampler) Ticks() <-chan Tick {
	return s.ticks
}

// Start begins sampling for trackID, replacing any previous run.
func (s *Sampler) Start(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.trackID == trackID {
		return
	}
	s.stopLocked()

	s.seq++
	s.trackID = trackID
	s.running = true
	s.cancel = s.startTicker(Tick{TrackID: trackID, Seq: s.seq})

	zlog.Debug().Msgf("progress: sampler started: track=%s seq=%d", trackID, s.seq)
}

// Stop halts sampling. Ticks already buffered are invalidated.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sampler) stopLocked() {
	if !s.running {
		return
	}
	s.cancel()
	s.cancel = nil
	s.running = false
	// Bump so in-flight ticks from the old run fail Current.
	s.seq++
	zlog.Debug().Msgf("progress: sampler stopped: track=%s", s.trackID)
}

// Current reports whether a tick belongs to the active run.
func (s *Sampler) Current(t Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && t.Seq == s.seq && t.TrackID == s.trackID
}

// startTicker runs the ticker goroutine and returns its cancel function.
func (s *Sampler) startTicker(tick Tick) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case s.ticks <- tick:
				case <-ctx.Done():
					return
				default:
					// Consumer is behind; the next tick carries the same information.
				}
			}
		}
	}()

	return cancel
}
