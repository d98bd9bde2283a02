// Package ytbridge implements player.Adapter over a websocket to the
// browser page hosting the embedded video player. Commands are sent as JSON
// messages; the page reports readiness, state changes, errors and periodic
// time updates back.
package ytbridge

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/player"
)

// Command names sent to the page.
const (
	CmdLoad   = "load"
	CmdPlay   = "play"
	CmdPause  = "pause"
	CmdStop   = "stop"
	CmdSeek   = "seek"
	CmdVolume = "volume"
	CmdMute   = "mute"
	CmdUnmute = "unmute"
)

// Event names reported by the page.
const (
	EvReady = "ready"
	EvState = "state"
	EvError = "error"
	EvTime  = "time"
)

const (
	eventBufferSize = 64
	writeTimeout    = 5 * time.Second
)

// ErrReplaced is returned by Attach when a newer connection took over.
var ErrReplaced = errors.New("player connection replaced")

// Command is a server to page message.
type Command struct {
	Cmd        string `json:"cmd"`
	VideoID    string `json:"videoId,omitempty"`
	PositionMs int64  `json:"positionMs,omitempty"`
	Volume     *int   `json:"volume,omitempty"`
}

// Message is a page to server message.
type Message struct {
	Event         string `json:"event"`
	State         *int   `json:"state,omitempty"`
	Code          int    `json:"code,omitempty"`
	CurrentTimeMs int64  `json:"currentTimeMs,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
	VideoID       string `json:"videoId,omitempty"`
}

// Conn is the websocket surface the bridge uses. *websocket.Conn satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ player.Adapter = (*Bridge)(nil)

// Bridge is a player.Adapter driving a remote page. With no page attached
// commands are dropped.
type Bridge struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    Conn
	ready   bool // The attached page has reported ready

	loadedID string
	state    player.State
	current  time.Duration
	duration time.Duration
	syncedAt time.Time

	events chan player.Event
	now    func() time.Time
}

// New creates a detached bridge.
func New() *Bridge {
	return &Bridge{
		state:  player.StateUnstarted,
		events: make(chan player.Event, eventBufferSize),
		now:    time.Now,
	}
}

// Attach makes conn the active page connection and reads its messages until
// the connection fails, ctx ends or another connection is attached. A normal
// close returns nil.
func (b *Bridge) Attach(ctx context.Context, conn Conn) error {
	b.mu.Lock()
	prev := b.conn
	b.conn = conn
	b.ready = false
	b.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	zlog.Info().Msg("ytbridge: player attached")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			replaced := b.detach(conn)
			switch {
			case replaced:
				return ErrReplaced
			case ctx.Err() != nil:
				return nil
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil
			default:
				return errors.Wrap(err, "player connection lost")
			}
		}
		b.handle(msg)
	}
}

// Attached reports whether a page is connected.
func (b *Bridge) Attached() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil
}

// Ready reports whether the attached page has reported ready. It implements
// player.ReadyReporter so a session created after the page loaded does not
// wait for a ready event that was already sent.
func (b *Bridge) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil && b.ready
}

// detach clears conn if it is still the active one and reports whether it had
// already been replaced.
func (b *Bridge) detach(conn Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != conn {
		return true
	}
	b.conn = nil
	b.ready = false
	if b.state == player.StatePlaying || b.state == player.StateBuffering {
		b.current = b.currentLocked()
		b.state = player.StatePaused
	}
	zlog.Info().Msg("ytbridge: player detached")
	return false
}

func (b *Bridge) handle(msg Message) {
	switch msg.Event {
	case EvReady:
		b.mu.Lock()
		b.ready = true
		b.mu.Unlock()
		b.emit(player.Event{Type: player.EventReady})

	case EvState:
		if msg.State == nil {
			zlog.Warn().Msg("ytbridge: state event without state")
			return
		}
		st := player.State(*msg.State)
		b.mu.Lock()
		b.current = b.currentLocked()
		b.syncedAt = b.now()
		b.state = st
		b.mu.Unlock()
		b.emit(player.Event{Type: player.EventStateChanged, State: st})

	case EvError:
		b.emit(player.Event{Type: player.EventError, Code: player.ErrorCode(msg.Code)})

	case EvTime:
		b.mu.Lock()
		defer b.mu.Unlock()
		if msg.VideoID != "" && msg.VideoID != b.loadedID {
			return
		}
		b.current = time.Duration(msg.CurrentTimeMs) * time.Millisecond
		if msg.DurationMs > 0 {
			b.duration = time.Duration(msg.DurationMs) * time.Millisecond
		}
		b.syncedAt = b.now()

	default:
		zlog.Debug().Msgf("ytbridge: ignoring event %q", msg.Event)
	}
}

func (b *Bridge) emit(ev player.Event) {
	select {
	case b.events <- ev:
	default:
		zlog.Warn().Msgf("ytbridge: event buffer full, dropping %s", ev.Type)
	}
}

func (b *Bridge) send(cmd Command) {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		zlog.Debug().Msgf("ytbridge: no player attached, dropping %s", cmd.Cmd)
		return
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	conn.SetWriteDeadline(b.now().Add(writeTimeout))
	if err := conn.WriteJSON(cmd); err != nil {
		zlog.Warn().Err(err).Msgf("ytbridge: failed to send %s", cmd.Cmd)
	}
}

// LoadTrack implements player.Adapter.
func (b *Bridge) LoadTrack(id string) {
	b.mu.Lock()
	b.loadedID = id
	b.state = player.StateUnstarted
	b.current = 0
	b.duration = 0
	b.syncedAt = b.now()
	b.mu.Unlock()
	b.send(Command{Cmd: CmdLoad, VideoID: id})
}

// Play implements player.Adapter.
func (b *Bridge) Play() { b.send(Command{Cmd: CmdPlay}) }

// Pause implements player.Adapter.
func (b *Bridge) Pause() { b.send(Command{Cmd: CmdPause}) }

// Stop implements player.Adapter.
func (b *Bridge) Stop() { b.send(Command{Cmd: CmdStop}) }

// SeekTo implements player.Adapter.
func (b *Bridge) SeekTo(position time.Duration) {
	b.mu.Lock()
	b.current = position
	b.syncedAt = b.now()
	b.mu.Unlock()
	b.send(Command{Cmd: CmdSeek, PositionMs: position.Milliseconds()})
}

// SetVolume implements player.Adapter.
func (b *Bridge) SetVolume(volume int) {
	b.send(Command{Cmd: CmdVolume, Volume: &volume})
}

// Mute implements player.Adapter.
func (b *Bridge) Mute() { b.send(Command{Cmd: CmdMute}) }

// Unmute implements player.Adapter.
func (b *Bridge) Unmute() { b.send(Command{Cmd: CmdUnmute}) }

// CurrentTime implements player.Adapter. While playing the last reported
// position is extrapolated with wall-clock time.
func (b *Bridge) CurrentTime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentLocked()
}

func (b *Bridge) currentLocked() time.Duration {
	if b.state != player.StatePlaying {
		return b.current
	}
	cur := b.current + b.now().Sub(b.syncedAt)
	if b.duration > 0 && cur > b.duration {
		return b.duration
	}
	return cur
}

// Duration implements player.Adapter.
func (b *Bridge) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.duration
}

// State implements player.Adapter.
func (b *Bridge) State() player.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LoadedID implements player.Adapter.
func (b *Bridge) LoadedID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loadedID
}

// Events implements player.Adapter.
func (b *Bridge) Events() <-chan player.Event {
	return b.events
}
