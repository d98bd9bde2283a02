// Package playertest provides a recording player.Adapter for tests.
package playertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/osa030/sonora/internal/app/player"
)

// Fake records every command it receives. Time, duration and state are set
// directly by the test.
type Fake struct {
	mu       sync.Mutex
	commands []string
	loaded   string
	state    player.State
	current  time.Duration
	duration time.Duration
	ready    bool
	events   chan player.Event
}

// New creates a fake adapter in the unstarted state.
func New() *Fake {
	return &Fake{
		state:  player.StateUnstarted,
		events: make(chan player.Event, 16),
	}
}

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, fmt.Sprintf(format, args...))
}

// LoadTrack implements player.Adapter.
func (f *Fake) LoadTrack(id string) {
	f.record("load:%s", id)
	f.mu.Lock()
	f.loaded = id
	f.state = player.StateUnstarted
	f.current = 0
	f.mu.Unlock()
}

// Play implements player.Adapter.
func (f *Fake) Play() { f.record("play") }

// Pause implements player.Adapter.
func (f *Fake) Pause() { f.record("pause") }

// Stop implements player.Adapter.
func (f *Fake) Stop() { f.record("stop") }

// SeekTo implements player.Adapter.
func (f *Fake) SeekTo(position time.Duration) {
	f.record("seek:%d", position.Milliseconds())
	f.mu.Lock()
	f.current = position
	f.mu.Unlock()
}

// SetVolume implements player.Adapter.
func (f *Fake) SetVolume(volume int) { f.record("volume:%d", volume) }

// Mute implements player.Adapter.
func (f *Fake) Mute() { f.record("mute") }

// Unmute implements player.Adapter.
func (f *Fake) Unmute() { f.record("unmute") }

// CurrentTime implements player.Adapter.
func (f *Fake) CurrentTime() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Duration implements player.Adapter.
func (f *Fake) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

// State implements player.Adapter.
func (f *Fake) State() player.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LoadedID implements player.Adapter.
func (f *Fake) LoadedID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

// Events implements player.Adapter.
func (f *Fake) Events() <-chan player.Event {
	return f.events
}

// SetTime sets the reported current time and duration.
func (f *Fake) SetTime(current, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = current
	f.duration = duration
}

// SetState sets the reported transport state.
func (f *Fake) SetState(s player.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

// SetReady sets what Ready reports.
func (f *Fake) SetReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// Ready implements player.ReadyReporter.
func (f *Fake) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Emit queues an event on the Events channel.
func (f *Fake) Emit(e player.Event) {
	f.events <- e
}

// Commands returns the recorded commands in order.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

// Reset clears the recorded commands.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
}
