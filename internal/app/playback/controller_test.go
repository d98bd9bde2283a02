package playback

import (
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/sonora/internal/app/history"
	"github.com/osa030/sonora/internal/app/mode"
	"github.com/osa030/sonora/internal/app/player"
	"github.com/osa030/sonora/internal/app/player/playertest"
	"github.com/osa030/sonora/internal/domain/track"
)

var (
	trackA = track.Track{ID: "a", Title: "A", Duration: 3 * time.Minute}
	trackB = track.Track{ID: "b", Title: "B", Duration: 3 * time.Minute}
	trackC = track.Track{ID: "c", Title: "C", Duration: 3 * time.Minute}
)

func reverseShuffler(in []track.Track) []track.Track {
	out := make([]track.Track, len(in))
	for i, t := range in {
		out[len(in)-1-i] = t
	}
	return out
}

func newTestController(t *testing.T) (*Controller, *playertest.Fake) {
	t.Helper()
	fake := playertest.New()
	c := NewController(Config{
		SampleInterval: 5 * time.Millisecond,
		Shuffler:       reverseShuffler,
	}, fake, history.New(nil))
	t.Cleanup(c.Close)
	return c, fake
}

func newReadyController(t *testing.T) (*Controller, *playertest.Fake) {
	t.Helper()
	c, fake := newTestController(t)
	c.HandlePlayerEvent(player.Event{Type: player.EventReady})
	fake.Reset()
	return c, fake
}

// confirmPlaying simulates the player starting the loaded track.
func confirmPlaying(c *Controller, fake *playertest.Fake) {
	fake.SetState(player.StatePlaying)
	c.HandlePlayerEvent(player.Event{Type: player.EventStateChanged, State: player.StatePlaying})
}

func currentID(t *testing.T, c *Controller) string {
	t.Helper()
	cur, ok := c.GetCurrentTrack()
	require.True(t, ok, "expected a current track")
	return cur.ID
}

func drainEvents(c *Controller) []EventType {
	var types []EventType
	for {
		select {
		case e := <-c.Events():
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func TestController_CommandsBeforeReady(t *testing.T) {
	c, fake := newTestController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	c.SetVolume(0.5)
	assert.Empty(t, fake.Commands(), "no command may reach the player before ready")
	assert.Equal(t, StatePaused, c.Snapshot().State)

	c.HandlePlayerEvent(player.Event{Type: player.EventReady})
	assert.Equal(t, []string{"volume:50", "load:a"}, fake.Commands())

	confirmPlaying(c, fake)
	assert.Equal(t, StatePlaying, c.Snapshot().State)
}

func TestController_AdoptsReadyAdapter(t *testing.T) {
	fake := playertest.New()
	fake.SetReady(true)
	c := NewController(Config{SampleInterval: 5 * time.Millisecond}, fake, history.New(nil))
	t.Cleanup(c.Close)

	assert.True(t, c.Snapshot().PlayerReady)
	assert.Equal(t, []string{"volume:100"}, fake.Commands())
	assert.Contains(t, drainEvents(c), EventStateChanged)

	fake.Reset()
	c.PlayTrack(trackB, []track.Track{trackA, trackB})
	assert.Equal(t, []string{"load:b"}, fake.Commands())
}

func TestController_PlayTrack(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackB, []track.Track{trackA, trackB, trackC})
	assert.Equal(t, "b", currentID(t, c))
	assert.Equal(t, []string{"b", "c", "a"}, track.IDs(c.GetQueuedTracks()))
	assert.Equal(t, []string{"load:b"}, fake.Commands())
	assert.Empty(t, c.GetHistory())

	confirmPlaying(c, fake)
	fake.Reset()

	c.PlayTrack(trackA, []track.Track{trackA, trackB, trackC})
	assert.Equal(t, []string{"stop", "load:a"}, fake.Commands(), "previous track is stopped before the new load")
	assert.Equal(t, []string{"b"}, track.IDs(c.GetHistory()))
}

func TestController_PlayTrackNotInSource(t *testing.T) {
	c, _ := newReadyController(t)

	adhoc := track.Track{ID: "x"}
	c.PlayTrack(adhoc, []track.Track{trackA, trackB})
	assert.Equal(t, "x", currentID(t, c))
	assert.Equal(t, []string{"x", "a", "b"}, track.IDs(c.GetQueuedTracks()))
}

func TestController_BasicTransition(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB, trackC})
	confirmPlaying(c, fake)

	require.NoError(t, c.Next())
	assert.Equal(t, "b", currentID(t, c))
	assert.Equal(t, []string{"a"}, track.IDs(c.GetHistory()))
	assert.Equal(t, []string{"a", "b", "c"}, track.IDs(c.GetQueuedTracks()))

	confirmPlaying(c, fake)
	fake.SetTime(2*time.Second, 3*time.Minute)

	require.NoError(t, c.Previous())
	assert.Equal(t, "a", currentID(t, c))
	assert.Empty(t, c.GetHistory())
	assert.Equal(t, "b", c.GetQueuedTracks()[0].ID)
}

func TestController_PreviousPastThresholdRestarts(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	confirmPlaying(c, fake)
	require.NoError(t, c.Next())
	confirmPlaying(c, fake)

	fake.SetTime(10*time.Second, 3*time.Minute)
	fake.Reset()

	require.NoError(t, c.Previous())
	assert.Equal(t, "b", currentID(t, c))
	assert.Equal(t, []string{"seek:0"}, fake.Commands())
	assert.Equal(t, []string{"a"}, track.IDs(c.GetHistory()))
}

func TestController_PreviousWithEmptyHistory(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA})
	confirmPlaying(c, fake)
	fake.Reset()

	require.NoError(t, c.Previous())
	assert.Equal(t, "a", currentID(t, c))
	assert.Equal(t, []string{"seek:0"}, fake.Commands())
}

func TestController_RepeatOneIsIdempotent(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	confirmPlaying(c, fake)
	c.CycleRepeat()
	require.Equal(t, mode.RepeatOne, c.CycleRepeat())
	fake.Reset()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Next())
		assert.Equal(t, "a", currentID(t, c))
	}

	assert.Equal(t, []string{"seek:0", "play", "seek:0", "play", "seek:0", "play"}, fake.Commands())
	assert.Empty(t, c.GetHistory())
	assert.Equal(t, []string{"a", "b"}, track.IDs(c.GetQueuedTracks()))
}

func TestController_EndOfQueue(t *testing.T) {
	tests := []struct {
		name        string
		repeat      int // Number of repeat cycles from none
		wantCurrent string
		wantState   State
	}{
		{
			name:        "repeat none stops on last track",
			repeat:      0,
			wantCurrent: "b",
			wantState:   StatePaused,
		},
		{
			name:        "repeat all wraps to the start",
			repeat:      1,
			wantCurrent: "a",
			wantState:   StatePaused, // Waiting for the player to confirm
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newReadyController(t)
			for i := 0; i < tt.repeat; i++ {
				c.CycleRepeat()
			}

			c.PlayTrack(trackA, []track.Track{trackA, trackB})
			confirmPlaying(c, fake)
			require.NoError(t, c.Next())
			confirmPlaying(c, fake)
			drainEvents(c)

			require.NoError(t, c.Next())
			assert.Equal(t, tt.wantCurrent, currentID(t, c))
			assert.Equal(t, tt.wantState, c.Snapshot().State)
		})
	}
}

func TestController_EndOfQueueEmitsQueueEnded(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA})
	confirmPlaying(c, fake)
	drainEvents(c)
	fake.Reset()

	require.NoError(t, c.Next())
	assert.Equal(t, []string{"pause"}, fake.Commands())
	assert.Contains(t, drainEvents(c), EventQueueEnded)
	assert.False(t, c.Snapshot().IntendedPlaying)

	// A late ended event must not advance again.
	c.HandlePlayerEvent(player.Event{Type: player.EventStateChanged, State: player.StateEnded})
	assert.NotContains(t, drainEvents(c), EventQueueEnded)
}

func TestController_HistoryBound(t *testing.T) {
	c, fake := newReadyController(t)

	const n = 60
	for i := 0; i < n; i++ {
		tr := track.Track{ID: fmt.Sprintf("t%d", i)}
		c.PlayTrack(tr, []track.Track{tr})
		confirmPlaying(c, fake)
	}

	hist := c.GetHistory()
	require.Len(t, hist, history.Capacity)
	assert.Equal(t, "t58", hist[0].ID)
	assert.Equal(t, "t9", hist[history.Capacity-1].ID)
}

func TestController_DeleteCurrent(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB, trackC})
	confirmPlaying(c, fake)
	require.NoError(t, c.Next())
	confirmPlaying(c, fake)
	fake.Reset()

	c.DeleteFromLibrary("b")
	assert.Equal(t, []string{"a", "c"}, track.IDs(c.GetQueuedTracks()))
	assert.Equal(t, "c", currentID(t, c))
	assert.Equal(t, []string{"stop", "load:c"}, fake.Commands())
}

func TestController_DeleteCurrentLastTrack(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	confirmPlaying(c, fake)
	require.NoError(t, c.Next())
	confirmPlaying(c, fake)

	c.DeleteFromLibrary("b")
	assert.Equal(t, "a", currentID(t, c), "index past the end clamps to the first track")

	c.DeleteFromLibrary("a")
	_, ok := c.GetCurrentTrack()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, c.Snapshot().State)
	assert.Empty(t, c.GetHistory())
}

func TestController_DeleteOtherTrack(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB, trackC})
	confirmPlaying(c, fake)
	fake.Reset()

	c.DeleteFromLibrary("c")
	assert.Equal(t, "a", currentID(t, c))
	assert.Equal(t, []string{"a", "b"}, track.IDs(c.GetQueuedTracks()))
	assert.Empty(t, fake.Commands())
}

func TestController_EndedEventAdvances(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	confirmPlaying(c, fake)

	c.HandlePlayerEvent(player.Event{Type: player.EventStateChanged, State: player.StateEnded})
	assert.Equal(t, "b", currentID(t, c))

	// The old track's end arriving before the new one starts is ignored.
	c.HandlePlayerEvent(player.Event{Type: player.EventStateChanged, State: player.StateEnded})
	assert.Equal(t, "b", currentID(t, c))
}

func TestController_NearEndAdvances(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	confirmPlaying(c, fake)
	fake.SetTime(3*time.Minute-300*time.Millisecond, 3*time.Minute)

	select {
	case tick := <-c.Ticks():
		c.Tick(tick)
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}

	assert.Equal(t, "b", currentID(t, c))
	assert.Equal(t, []string{"a"}, track.IDs(c.GetHistory()))
}

func TestController_TickLearnsDuration(t *testing.T) {
	c, fake := newReadyController(t)

	unknown := track.Track{ID: "u", Title: "U"}
	c.PlayTrack(unknown, []track.Track{unknown, trackB})
	confirmPlaying(c, fake)
	fake.SetTime(time.Second, 4*time.Minute)
	drainEvents(c)

	select {
	case tick := <-c.Ticks():
		c.Tick(tick)
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}

	cur, ok := c.GetCurrentTrack()
	require.True(t, ok)
	assert.Equal(t, 4*time.Minute, cur.Duration)
	assert.Equal(t, 4*time.Minute, c.GetQueuedTracks()[0].Duration)
	assert.Contains(t, drainEvents(c), EventDurationLearned)
	assert.Equal(t, time.Second, c.Snapshot().Progress.Current)
}

func TestController_StaleTickIgnored(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	confirmPlaying(c, fake)

	tick := <-c.Ticks()
	c.HandlePlayerEvent(player.Event{Type: player.EventStateChanged, State: player.StatePaused})
	fake.SetTime(3*time.Minute-100*time.Millisecond, 3*time.Minute)

	c.Tick(tick)
	assert.Equal(t, "a", currentID(t, c))
}

func TestController_TogglePlay(t *testing.T) {
	c, fake := newReadyController(t)

	assert.True(t, errors.Is(c.TogglePlay(), ErrNoTrack))

	c.PlayTrack(trackA, []track.Track{trackA})
	confirmPlaying(c, fake)
	fake.Reset()

	require.NoError(t, c.TogglePlay())
	require.NoError(t, c.TogglePlay())
	assert.Equal(t, []string{"pause", "play"}, fake.Commands())
	// Confirmed state only follows player events.
	assert.Equal(t, StatePlaying, c.Snapshot().State)

	c.HandlePlayerEvent(player.Event{Type: player.EventStateChanged, State: player.StatePaused})
	assert.Equal(t, StatePaused, c.Snapshot().State)
}

func TestController_Seek(t *testing.T) {
	c, fake := newReadyController(t)

	assert.True(t, errors.Is(c.Seek(time.Second), ErrNoTrack))

	c.PlayTrack(trackA, []track.Track{trackA})
	fake.Reset()

	require.NoError(t, c.Seek(30*time.Second))
	require.NoError(t, c.Seek(time.Hour))
	require.NoError(t, c.Seek(-time.Second))
	assert.Equal(t, []string{"seek:30000", "seek:180000", "seek:0"}, fake.Commands())
}

func TestController_VolumeAndMute(t *testing.T) {
	c, fake := newReadyController(t)

	c.ToggleMute()
	c.SetVolume(0.3)
	c.SetVolume(0)
	assert.Equal(t, []string{"mute", "volume:30", "unmute", "volume:0"}, fake.Commands())

	modes := c.Snapshot().Modes
	assert.False(t, modes.Muted)
	assert.Equal(t, 0.0, modes.Volume)
}

func TestController_ToggleShuffle(t *testing.T) {
	c, fake := newReadyController(t)
	source := []track.Track{trackA, trackB, trackC, {ID: "d"}}

	c.PlayTrack(trackA, source)
	confirmPlaying(c, fake)

	c.ToggleShuffle(source)
	assert.True(t, c.Snapshot().Modes.Shuffle)
	assert.Equal(t, []string{"a", "d", "c", "b"}, track.IDs(c.GetQueuedTracks()))

	c.ToggleShuffle(source)
	assert.False(t, c.Snapshot().Modes.Shuffle)
	assert.Equal(t, []string{"a", "b", "c", "d"}, track.IDs(c.GetQueuedTracks()))
}

func TestController_ShuffledPlayTrack(t *testing.T) {
	c, _ := newReadyController(t)
	source := []track.Track{trackA, trackB, trackC}

	c.ToggleShuffle(source)
	c.PlayTrack(trackB, source)

	got := c.GetQueuedTracks()
	assert.Equal(t, "b", got[0].ID)
	assert.ElementsMatch(t, track.IDs(source), track.IDs(got))
}

func TestController_QueueEditing(t *testing.T) {
	c, fake := newReadyController(t)

	// Play next with nothing playing starts the track.
	require.NoError(t, c.PlayNext(trackA))
	assert.Equal(t, "a", currentID(t, c))
	confirmPlaying(c, fake)

	require.NoError(t, c.Enqueue(trackC))
	require.NoError(t, c.PlayNext(trackB))
	assert.Equal(t, []string{"a", "b", "c"}, track.IDs(c.GetQueuedTracks()))

	assert.True(t, errors.Is(c.PlayNext(trackB), ErrAlreadyQueued))
	assert.True(t, errors.Is(c.Enqueue(trackC), ErrAlreadyQueued))
	assert.Equal(t, []string{"a", "b", "c"}, track.IDs(c.GetQueuedTracks()))

	c.ToggleShuffle(nil)
	require.NoError(t, c.Reorder([]string{"c", "b"}))
	assert.Equal(t, []string{"a", "c", "b"}, track.IDs(c.GetQueuedTracks()))
	assert.False(t, c.Snapshot().Modes.Shuffle, "explicit reorder turns shuffle off")

	assert.Error(t, c.Reorder([]string{"c"}))

	c.RemoveFromQueue("c")
	assert.Equal(t, []string{"a", "b"}, track.IDs(c.GetQueuedTracks()))

	c.ClearQueue()
	assert.Equal(t, []string{"a"}, track.IDs(c.GetQueuedTracks()))
}

func TestController_SetQueueDisablesShuffle(t *testing.T) {
	c, _ := newReadyController(t)

	c.ToggleShuffle(nil)
	c.SetQueue([]track.Track{trackC, trackA})
	assert.False(t, c.Snapshot().Modes.Shuffle)
	assert.Equal(t, []string{"c", "a"}, track.IDs(c.GetQueuedTracks()))
}

func TestController_PlayFromHistory(t *testing.T) {
	c, fake := newReadyController(t)

	for _, tr := range []track.Track{trackA, trackB, trackC} {
		c.PlayTrack(tr, []track.Track{tr})
		confirmPlaying(c, fake)
	}
	require.Equal(t, []string{"b", "a"}, track.IDs(c.GetHistory()))

	require.NoError(t, c.PlayFromHistory(0))
	assert.Equal(t, "b", currentID(t, c))
	assert.Equal(t, []string{"b", "a"}, track.IDs(c.GetQueuedTracks()))

	assert.Error(t, c.PlayFromHistory(10))
}

func TestController_PlayerError(t *testing.T) {
	c, fake := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA})
	drainEvents(c)

	c.HandlePlayerEvent(player.Event{Type: player.EventError, Code: player.ErrVideoNotFound})
	assert.Equal(t, "a", currentID(t, c))
	assert.Equal(t, StatePaused, c.Snapshot().State)
	assert.False(t, c.Snapshot().IntendedPlaying)
	assert.Contains(t, drainEvents(c), EventPlayerError)

	fake.Reset()
	require.NoError(t, c.TogglePlay())
	assert.Equal(t, []string{"play"}, fake.Commands(), "a fresh play is sent to the player")
}

func TestController_ReplaceTrack(t *testing.T) {
	c, _ := newReadyController(t)

	c.PlayTrack(trackA, []track.Track{trackA, trackB})
	updated := trackB.WithLyrics("la la")
	c.ReplaceTrack(updated)

	assert.True(t, c.GetQueuedTracks()[1].HasLyrics())
}

func TestController_CloseIsIdempotent(t *testing.T) {
	c, _ := newTestController(t)
	c.Close()
	c.Close()
	c.SetVolume(0.2)
}
