package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/history"
	"github.com/osa030/sonora/internal/app/mode"
	"github.com/osa030/sonora/internal/app/player"
	"github.com/osa030/sonora/internal/app/progress"
	"github.com/osa030/sonora/internal/app/queue"
	"github.com/osa030/sonora/internal/domain/track"
)

// Errors
var (
	ErrNoTrack       = errors.New("no track playing")
	ErrAlreadyQueued = queue.ErrAlreadyQueued
)

// Default configuration values.
const (
	DefaultRestartThreshold = 3 * time.Second
	DefaultEventBuffer      = 64
)

// Config holds controller configuration.
type Config struct {
	RestartThreshold time.Duration  // Previous restarts the current track past this position
	NearEnd          time.Duration  // Proactive end-of-track window
	SampleInterval   time.Duration  // Progress sampling period
	Shuffler         queue.Shuffler // nil selects a random shuffler
}

func (c Config) withDefaults() Config {
	if c.RestartThreshold <= 0 {
		c.RestartThreshold = DefaultRestartThreshold
	}
	if c.NearEnd <= 0 {
		c.NearEnd = progress.DefaultNearEnd
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = progress.DefaultInterval
	}
	return c
}

// Snapshot is the published session state.
type Snapshot struct {
	State           State             `json:"state"`
	CurrentTrack    *track.Track      `json:"currentTrack"`
	IsPlaying       bool              `json:"isPlaying"`
	IntendedPlaying bool              `json:"intendedPlaying"`
	Progress        progress.Progress `json:"progress"`
	Queue           []track.Track     `json:"queue"`
	History         []track.Track     `json:"history"`
	Modes           mode.State        `json:"modes"`
	PlayerReady     bool              `json:"playerReady"`
}

// Controller is the playback session. It owns the current track and the
// play/pause intent, and drives the adapter, the queue and the history.
//
// Adapter events and sampler ticks must be fed in through HandlePlayerEvent
// and Tick; the controller never reads the adapter's event channel itself.
type Controller struct {
	mu sync.RWMutex

	adapter player.Adapter
	queue   *queue.Manager
	history *history.Log
	modes   mode.State
	sampler *progress.Sampler

	// Current track state
	current          *track.Track
	intendedPlaying  bool // Set as soon as a command is issued
	confirmedPlaying bool // Set only from adapter events
	progress         progress.Progress

	// Adapter bookkeeping
	ready         bool // Adapter has reported ready
	pendingLoad   bool // Load the current track once ready
	awaitingStart bool // A load was issued and has not been confirmed playing
	nearEndFired  bool // Proactive advance already triggered for this track

	config Config

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller in the idle state.
func NewController(config Config, adapter player.Adapter, hist *history.Log) *Controller {
	config = config.withDefaults()
	if hist == nil {
		hist = history.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		adapter: adapter,
		queue:   queue.New(config.Shuffler),
		history: hist,
		modes:   mode.New(),
		sampler: progress.NewSampler(config.SampleInterval),
		config:  config,
		eventCh: make(chan Event, DefaultEventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	if r, ok := adapter.(player.ReadyReporter); ok && r.Ready() {
		c.mu.Lock()
		c.onReadyLocked()
		c.mu.Unlock()
	}
	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Ticks returns the progress sampler's tick channel.
func (c *Controller) Ticks() <-chan progress.Tick {
	return c.sampler.Ticks()
}

// PlayTrack makes t the current track and rebuilds the queue from source so
// t plays first. A t absent from source is played ahead of it.
func (c *Controller) PlayTrack(t track.Track, source []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playTrackLocked(t, source)
}

func (c *Controller) playTrackLocked(t track.Track, source []track.Track) {
	c.pushHistoryLocked(t.ID)
	c.queue.Rotate(t, source, c.modes.Shuffle)
	c.startTrackLocked(t)
	c.sendEventLocked(Event{Type: EventQueueChanged})
}

// PlayFromHistory plays the history entry at index i, with the older entries
// as its source.
func (c *Controller) PlayFromHistory(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.history.Snapshot()
	if i < 0 || i >= len(entries) {
		return errors.Newf("history index %d out of range", i)
	}
	c.playTrackLocked(entries[i], entries[i+1:])
	return nil
}

// TogglePlay flips between playing and paused.
func (c *Controller) TogglePlay() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if c.intendedPlaying {
		c.pauseLocked()
	} else {
		c.resumeLocked()
	}
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})
	return nil
}

// Next advances to the next track, honouring the repeat mode.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	c.advanceLocked()
	return nil
}

// Previous restarts the current track when it has played past the restart
// threshold, otherwise returns to the most recent history entry.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}

	if c.ready && c.adapter.CurrentTime() > c.config.RestartThreshold {
		c.seekLocked(0)
		return nil
	}

	prev, ok := c.history.Pop()
	if !ok {
		c.seekLocked(0)
		return nil
	}

	c.queue.PushFront(*c.current)
	c.startTrackLocked(prev)
	c.sendEventLocked(Event{Type: EventHistoryChanged})
	c.sendEventLocked(Event{Type: EventQueueChanged})
	return nil
}

// Seek moves the playback position, clamped to the known duration.
func (c *Controller) Seek(position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if position < 0 {
		position = 0
	}
	if d := c.progress.Duration; d > 0 && position > d {
		position = d
	}
	c.seekLocked(position)
	return nil
}

// SetVolume sets the volume in [0, 1]. A positive volume unmutes.
func (c *Controller) SetVolume(volume float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unmuted := c.modes.SetVolume(volume)
	if c.ready {
		c.adapter.SetVolume(c.modes.PlayerVolume())
		if unmuted {
			c.adapter.Unmute()
		}
	}
	c.sendEventLocked(Event{Type: EventModeChanged})
}

// ToggleMute flips the mute flag.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	defer c.mu.Unlock()

	muted := c.modes.ToggleMute()
	if c.ready {
		if muted {
			c.adapter.Mute()
		} else {
			c.adapter.Unmute()
		}
	}
	c.sendEventLocked(Event{Type: EventModeChanged})
}

// ToggleShuffle flips shuffle. Turning it on shuffles the tracks after the
// current one; turning it off restores source rotated to the current track.
func (c *Controller) ToggleShuffle(source []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	on := c.modes.ToggleShuffle()
	c.sendEventLocked(Event{Type: EventModeChanged})
	if c.current == nil {
		return
	}

	if on {
		c.queue.ShuffleUpcoming(c.current.ID)
	} else if !c.queue.Restore(source, c.current.ID) {
		zlog.Debug().Msgf("playback: shuffle off: current track not in view, queue kept: track=%s", c.current.ID)
		return
	}
	c.sendEventLocked(Event{Type: EventQueueChanged})
}

// CycleRepeat advances the repeat mode.
func (c *Controller) CycleRepeat() mode.Repeat {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.modes.CycleRepeat()
	c.sendEventLocked(Event{Type: EventModeChanged})
	return r
}

// SetQueue replaces the queue. An explicit order turns shuffle off.
func (c *Controller) SetQueue(tracks []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.Replace(tracks)
	c.disableShuffleLocked()
	c.sendEventLocked(Event{Type: EventQueueChanged})
}

// Enqueue appends t to the queue.
func (c *Controller) Enqueue(t track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.queue.Append(t); err != nil {
		return err
	}
	c.sendEventLocked(Event{Type: EventQueueChanged})
	return nil
}

// PlayNext queues t right after the current track. With nothing playing, t
// starts immediately.
func (c *Controller) PlayNext(t track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Contains(t.ID) {
		return ErrAlreadyQueued
	}
	if c.current == nil {
		source := append([]track.Track{t}, c.queue.Tracks()...)
		c.playTrackLocked(t, source)
		return nil
	}

	if err := c.queue.InsertNext(c.current.ID, t); err != nil {
		if errors.Is(err, queue.ErrNoCurrentTrack) {
			zlog.Debug().Msgf("playback: play next ignored, current track not queued: track=%s", t.ID)
			return nil
		}
		return err
	}
	c.sendEventLocked(Event{Type: EventQueueChanged})
	return nil
}

// RemoveFromQueue drops every occurrence of trackID from the queue. The
// current track keeps playing even when removed.
func (c *Controller) RemoveFromQueue(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Remove(trackID) > 0 {
		c.sendEventLocked(Event{Type: EventQueueChanged})
	}
}

// ClearQueue drops everything except the current track.
func (c *Controller) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.ClearUpcoming(c.currentIDLocked())
	c.sendEventLocked(Event{Type: EventQueueChanged})
}

// Reorder sets the order of the tracks after the current one. Shuffle is
// turned off since the order is now explicit.
func (c *Controller) Reorder(upcomingIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.queue.Reorder(c.currentIDLocked(), upcomingIDs); err != nil {
		return err
	}
	c.disableShuffleLocked()
	c.sendEventLocked(Event{Type: EventQueueChanged})
	return nil
}

// DeleteFromLibrary removes a deleted track from the session. When it is the
// current track, playback moves to the track taking its queue position.
func (c *Controller) DeleteFromLibrary(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history.Remove(trackID) {
		c.sendEventLocked(Event{Type: EventHistoryChanged})
	}

	if c.current == nil || c.current.ID != trackID {
		if c.queue.Remove(trackID) > 0 {
			c.sendEventLocked(Event{Type: EventQueueChanged})
		}
		return
	}

	idx := c.queue.IndexOf(trackID)
	c.sampler.Stop()
	if c.ready {
		c.adapter.Stop()
	}
	c.queue.Remove(trackID)
	c.sendEventLocked(Event{Type: EventQueueChanged})

	if c.queue.Len() == 0 {
		zlog.Debug().Msgf("playback: deleted current track, queue empty: track=%s", trackID)
		c.clearLocked()
		return
	}

	if idx < 0 || idx >= c.queue.Len() {
		idx = 0
	}
	next, _ := c.queue.At(idx)
	c.current = nil
	c.startTrackLocked(next)
}

// ReplaceTrack swaps in an updated record for the track wherever the session
// holds it.
func (c *Controller) ReplaceTrack(t track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceTrackLocked(t)
}

func (c *Controller) replaceTrackLocked(t track.Track) {
	if c.current != nil && c.current.ID == t.ID {
		updated := t
		c.current = &updated
		c.sendEventLocked(Event{Type: EventTrackChanged, Track: c.current})
	}
	if c.queue.ReplaceTrack(t) {
		c.sendEventLocked(Event{Type: EventQueueChanged})
	}
	if c.history.ReplaceTrack(t) {
		c.sendEventLocked(Event{Type: EventHistoryChanged})
	}
}

// HandlePlayerEvent applies an adapter event.
func (c *Controller) HandlePlayerEvent(e player.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case player.EventReady:
		c.onReadyLocked()
	case player.EventStateChanged:
		c.onStateChangedLocked(e.State)
	case player.EventError:
		zlog.Warn().Msgf("playback: player error: code=%d (%s) track=%s", int(e.Code), e.Code, c.currentIDLocked())
		// The attempt is abandoned; a fresh play is needed.
		c.awaitingStart = false
		c.intendedPlaying = c.confirmedPlaying
		c.sendEventLocked(Event{Type: EventPlayerError, Track: c.current, Code: e.Code})
	}
}

func (c *Controller) onReadyLocked() {
	c.ready = true
	zlog.Debug().Msg("playback: player ready")

	c.adapter.SetVolume(c.modes.PlayerVolume())
	if c.modes.Muted {
		c.adapter.Mute()
	}
	if c.pendingLoad && c.current != nil {
		c.loadLocked()
	}
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})
}

func (c *Controller) onStateChangedLocked(s player.State) {
	switch s {
	case player.StatePlaying:
		if c.current == nil {
			return
		}
		c.awaitingStart = false
		c.confirmedPlaying = true
		c.intendedPlaying = true
		c.sampler.Start(c.current.ID)
		c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})

	case player.StatePaused:
		c.confirmedPlaying = false
		c.intendedPlaying = false
		c.sampler.Stop()
		c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})

	case player.StateEnded:
		c.sampler.Stop()
		c.confirmedPlaying = false
		if c.current == nil || c.awaitingStart || !c.intendedPlaying {
			// Late end of a track that was already left behind.
			zlog.Debug().Msgf("playback: ignoring ended event: track=%s", c.currentIDLocked())
			return
		}
		c.advanceLocked()

	default:
		zlog.Debug().Msgf("playback: player state: %s", s)
	}
}

// Tick samples the adapter for the run the tick belongs to.
func (c *Controller) Tick(tick progress.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sampler.Current(tick) || c.current == nil || c.current.ID != tick.TrackID {
		return
	}

	r := progress.Evaluate(*c.current, c.adapter.CurrentTime(), c.adapter.Duration(), c.config.NearEnd)
	c.progress = r.Progress
	c.sendEventLocked(Event{Type: EventProgress, Track: c.current})

	if r.LearnedDuration > 0 {
		updated := *c.current
		updated.Duration = r.LearnedDuration
		c.replaceTrackLocked(updated)
		c.sendEventLocked(Event{Type: EventDurationLearned, Track: c.current})
	}

	if r.NearEnd && !c.nearEndFired {
		c.nearEndFired = true
		zlog.Debug().Msgf("playback: near end, advancing: track=%s remaining=%v", c.current.ID, r.Progress.Remaining())
		c.advanceLocked()
	}
}

// GetCurrentTrack returns the current track.
func (c *Controller) GetCurrentTrack() (*track.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil, false
	}
	t := *c.current
	return &t, true
}

// GetQueuedTracks returns a copy of the queue.
func (c *Controller) GetQueuedTracks() []track.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.Tracks()
}

// GetHistory returns the history, most recent first.
func (c *Controller) GetHistory() []track.Track {
	return c.history.Snapshot()
}

// Snapshot returns the full published state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var cur *track.Track
	if c.current != nil {
		t := *c.current
		cur = &t
	}
	return Snapshot{
		State:           c.stateLocked(),
		CurrentTrack:    cur,
		IsPlaying:       c.confirmedPlaying,
		IntendedPlaying: c.intendedPlaying,
		Progress:        c.progress,
		Queue:           c.queue.Tracks(),
		History:         c.history.Snapshot(),
		Modes:           c.modes,
		PlayerReady:     c.ready,
	}
}

// Close stops sampling and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	c.cancel()
	c.sampler.Stop()
	close(c.eventCh)
}

// advanceLocked moves past the current track.
// Must be called with lock held.
func (c *Controller) advanceLocked() {
	if c.current == nil {
		return
	}

	if c.modes.Repeat == mode.RepeatOne {
		c.seekLocked(0)
		c.resumeLocked()
		return
	}

	next := c.queue.IndexOf(c.current.ID) + 1
	if next >= c.queue.Len() {
		if c.modes.Repeat != mode.RepeatAll || c.queue.Len() == 0 {
			c.stopAtEndLocked()
			return
		}
		next = 0
	}

	t, _ := c.queue.At(next)
	c.pushHistoryLocked(t.ID)
	c.startTrackLocked(t)
}

// stopAtEndLocked pauses on the last track, keeping it current.
// Must be called with lock held.
func (c *Controller) stopAtEndLocked() {
	zlog.Debug().Msgf("playback: end of queue: track=%s", c.current.ID)

	c.sampler.Stop()
	if c.ready {
		c.adapter.Pause()
	}
	c.intendedPlaying = false
	c.confirmedPlaying = false
	c.sendEventLocked(Event{Type: EventQueueEnded, Track: c.current})
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})
}

// pushHistoryLocked records the current track when switching away from it.
// Must be called with lock held.
func (c *Controller) pushHistoryLocked(nextID string) {
	if c.current == nil || c.current.ID == nextID {
		return
	}
	c.history.Push(*c.current)
	c.sendEventLocked(Event{Type: EventHistoryChanged})
}

// startTrackLocked makes t current and loads it. History must already be
// updated by the caller.
// Must be called with lock held.
func (c *Controller) startTrackLocked(t track.Track) {
	prev := c.current
	changed := prev == nil || prev.ID != t.ID

	c.sampler.Stop()
	if changed && prev != nil && c.ready &&
		c.adapter.LoadedID() == prev.ID && c.adapter.State() != player.StateUnstarted {
		c.adapter.Stop()
	}

	cur := t
	c.current = &cur
	c.intendedPlaying = true
	if changed {
		c.confirmedPlaying = false
	}
	c.progress = progress.Progress{Duration: t.Duration}
	c.nearEndFired = false

	zlog.Debug().Msgf("playback: track started: track=%s title=%s", t.ID, t.Title)
	c.loadLocked()
	c.sendEventLocked(Event{Type: EventTrackChanged, Track: c.current})
}

// loadLocked issues the load for the current track, deferring it until the
// adapter is ready.
// Must be called with lock held.
func (c *Controller) loadLocked() {
	if !c.ready {
		c.pendingLoad = true
		return
	}
	c.pendingLoad = false

	if c.adapter.LoadedID() == c.current.ID {
		c.adapter.SeekTo(0)
		c.adapter.Play()
		return
	}
	c.adapter.LoadTrack(c.current.ID)
	c.awaitingStart = true
}

// Must be called with lock held.
func (c *Controller) pauseLocked() {
	c.intendedPlaying = false
	c.sampler.Stop()
	if c.ready && !c.pendingLoad {
		c.adapter.Pause()
	}
}

// Must be called with lock held.
func (c *Controller) resumeLocked() {
	c.intendedPlaying = true
	if !c.ready {
		c.pendingLoad = true
		return
	}
	if c.pendingLoad || c.adapter.LoadedID() != c.current.ID {
		c.loadLocked()
		return
	}
	c.adapter.Play()
}

// Must be called with lock held.
func (c *Controller) seekLocked(position time.Duration) {
	c.progress.Current = position
	if c.progress.Duration <= 0 || c.progress.Duration-position > c.config.NearEnd {
		c.nearEndFired = false
	}
	if c.ready && !c.pendingLoad {
		c.adapter.SeekTo(position)
	}
	c.sendEventLocked(Event{Type: EventProgress, Track: c.current})
}

// clearLocked returns the session to idle.
// Must be called with lock held.
func (c *Controller) clearLocked() {
	c.current = nil
	c.intendedPlaying = false
	c.confirmedPlaying = false
	c.awaitingStart = false
	c.pendingLoad = false
	c.progress = progress.Progress{}
	c.sendEventLocked(Event{Type: EventTrackChanged})
	c.sendEventLocked(Event{Type: EventStateChanged})
}

// Must be called with lock held.
func (c *Controller) disableShuffleLocked() {
	if c.modes.Shuffle {
		c.modes.Shuffle = false
		c.sendEventLocked(Event{Type: EventModeChanged})
	}
}

func (c *Controller) currentIDLocked() string {
	if c.current == nil {
		return ""
	}
	return c.current.ID
}

func (c *Controller) stateLocked() State {
	switch {
	case c.current == nil:
		return StateIdle
	case c.confirmedPlaying:
		return StatePlaying
	default:
		return StatePaused
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.ctx.Err() != nil {
		return
	}
	e.State = c.stateLocked()
	select {
	case c.eventCh <- e:
		// Successfully sent
	default:
		// Channel full, drop event; consumers resync from Snapshot
	}
}
