// Package session provides the per-user session manager: it wires the
// playback controller to the library, lyrics and search collaborators and
// exposes the command surface.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/history"
	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/app/lyrics"
	"github.com/osa030/sonora/internal/app/notification"
	"github.com/osa030/sonora/internal/app/playback"
	"github.com/osa030/sonora/internal/app/player"
	"github.com/osa030/sonora/internal/app/progress"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/domain/view"
)

// Errors
var (
	ErrSessionClosed = errors.New("session is closed")
)

// Notification types published besides the playback event names.
const (
	NotificationInitial  = "initial_state"
	NotificationState    = "state"
	NotificationProgress = "progress"
	NotificationLibrary  = "library"
)

// localTimeout bounds a local state read or write.
const localTimeout = 5 * time.Second

// Searcher resolves a free-text query to video tracks.
type Searcher interface {
	Search(ctx context.Context, query string) ([]track.Track, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Playback playback.Config
	Library  library.Store
	Local    LocalStore // nil keeps history and preferences in memory only
	Search   Searcher   // nil disables search
	Lyrics   *lyrics.Service
}

// State is the published session state.
type State struct {
	playback.Snapshot
	View          view.View `json:"view"`
	Theme         Theme     `json:"theme"`
	Authenticated bool      `json:"authenticated"`
}

// ProgressUpdate is the lightweight payload published on every sample.
type ProgressUpdate struct {
	TrackID   string            `json:"trackId"`
	IsPlaying bool              `json:"isPlaying"`
	Progress  progress.Progress `json:"progress"`
}

// Manager is one user's session.
type Manager struct {
	mu sync.RWMutex

	userID string

	// Components
	adapter      player.Adapter
	playback     *playback.Controller
	history      *history.Log
	library      *library.Service
	lyrics       *lyrics.Service
	search       Searcher
	local        LocalStore
	notification *notification.Manager

	// Preferences
	view  view.View
	theme Theme

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewManager creates a session for userID driving adapter. An empty userID
// is the anonymous session.
func NewManager(userID string, adapter player.Adapter, deps Deps) *Manager {
	var histStore history.Store
	if deps.Local != nil {
		histStore = historyStore{local: deps.Local, userID: userID}
	}
	hist := history.New(histStore)

	store := deps.Library
	if store == nil {
		store = library.NewMemoryStore()
	}
	lyr := deps.Lyrics
	if lyr == nil {
		lyr = lyrics.NewService(nil, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		userID:       userID,
		adapter:      adapter,
		playback:     playback.NewController(deps.Playback, adapter, hist),
		history:      hist,
		library:      library.NewService(userID, store),
		lyrics:       lyr,
		search:       deps.Search,
		local:        deps.Local,
		notification: notification.NewManager(),
		view:         view.AllSongs,
		theme:        DefaultTheme,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start loads persisted state and starts the event loop. Load failures are
// logged; the session starts with whatever could be loaded.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	m.started = true
	m.mu.Unlock()

	if err := m.library.Load(ctx); err != nil {
		zlog.Warn().Err(err).Msgf("session: failed to load library: user=%s", m.userID)
	}
	if err := m.history.Load(ctx); err != nil {
		zlog.Warn().Err(err).Msgf("session: failed to load history: user=%s", m.userID)
	}
	m.loadTheme(ctx)
	m.migrateAlbumArt(ctx)

	go m.loop()

	zlog.Info().Msgf("session: started: user=%s tracks=%d history=%d",
		m.userID, len(m.library.Tracks()), m.history.Len())
	return nil
}

func (m *Manager) loadTheme(ctx context.Context) {
	if m.local == nil {
		return
	}
	raw, ok, err := m.local.Get(ctx, m.userID, KeyTheme)
	if err != nil {
		zlog.Warn().Err(err).Msg("session: failed to read theme")
		return
	}
	if !ok {
		return
	}
	theme, err := ParseTheme(raw)
	if err != nil {
		zlog.Debug().Msgf("session: ignoring stored theme: %v", err)
		return
	}
	m.mu.Lock()
	m.theme = theme
	m.mu.Unlock()
}

// migrateAlbumArt runs the album art migration once per user.
func (m *Manager) migrateAlbumArt(ctx context.Context) {
	if m.local == nil || !m.library.Authenticated() {
		return
	}
	if _, done, err := m.local.Get(ctx, m.userID, KeyArtMigration); err != nil || done {
		return
	}

	changed := m.library.MigrateAlbumArt()
	if err := m.local.Set(ctx, m.userID, KeyArtMigration, "true"); err != nil {
		zlog.Warn().Err(err).Msg("session: failed to record album art migration")
		return
	}
	zlog.Info().Msgf("session: album art migration complete: user=%s changed=%d", m.userID, changed)
}

// loop feeds adapter events and sampler ticks into the controller and
// publishes controller events.
func (m *Manager) loop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: event loop panicked: user=%s panic=%v", m.userID, r)
			// Restart loop to prevent zombie session
			if m.ctx.Err() == nil {
				go m.loop()
				return
			}
		}
		select {
		case <-m.done:
		default:
			close(m.done)
		}
	}()

	playerEvents := m.adapter.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case e, ok := <-playerEvents:
			if !ok {
				playerEvents = nil
				continue
			}
			m.playback.HandlePlayerEvent(e)
		case tick := <-m.playback.Ticks():
			m.playback.Tick(tick)
		case ev, ok := <-m.playback.Events():
			if !ok {
				return
			}
			m.handlePlaybackEvent(ev)
		}
	}
}

func (m *Manager) handlePlaybackEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventProgress:
		snap := m.playback.Snapshot()
		update := ProgressUpdate{IsPlaying: snap.IsPlaying, Progress: snap.Progress}
		if snap.CurrentTrack != nil {
			update.TrackID = snap.CurrentTrack.ID
		}
		m.notification.Broadcast(&notification.Notification{Type: NotificationProgress, Payload: update})
		return

	case playback.EventDurationLearned:
		if ev.Track != nil {
			if _, ok := m.library.UpdateDuration(ev.Track.ID, ev.Track.Duration); ok {
				zlog.Debug().Msgf("session: duration learned: track=%s duration=%v", ev.Track.ID, ev.Track.Duration)
				m.publishLibrary()
			}
		}

	case playback.EventPlayerError:
		zlog.Info().Msgf("session: player error: user=%s code=%d (%s)", m.userID, int(ev.Code), ev.Code)

	default:
		zlog.Debug().Msgf("session: playback event: type=%s state=%s", ev.Type, ev.State)
	}

	m.publish(ev.Type.String())
}

// publish broadcasts the full state.
func (m *Manager) publish(reason string) {
	m.notification.Broadcast(&notification.Notification{
		Type:    NotificationState,
		Payload: map[string]any{"reason": reason, "state": m.State()},
	})
}

// publishLibrary tells subscribers the library changed.
func (m *Manager) publishLibrary() {
	m.notification.Broadcast(&notification.Notification{
		Type:    NotificationLibrary,
		Payload: m.LibraryState(),
	})
}

// State returns the published session state.
func (m *Manager) State() State {
	m.mu.RLock()
	v, theme := m.view, m.theme
	m.mu.RUnlock()

	return State{
		Snapshot:      m.playback.Snapshot(),
		View:          v,
		Theme:         theme,
		Authenticated: m.library.Authenticated(),
	}
}

// UserID returns the owning user id.
func (m *Manager) UserID() string {
	return m.userID
}

// Notifications returns the notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// Done is closed when the event loop exits.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops the session and flushes pending writes.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.cancel()
	started := m.started
	m.mu.Unlock()

	if started {
		select {
		case <-m.done:
		case <-time.After(time.Second):
			zlog.Warn().Msgf("session: event loop did not stop: user=%s", m.userID)
		}
	}
	m.playback.Close()
	m.history.Close()
	m.library.Flush()
	m.notification.Close()
	zlog.Info().Msgf("session: closed: user=%s", m.userID)
}

func (m *Manager) localContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, localTimeout)
}
