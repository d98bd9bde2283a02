package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/app/mode"
	"github.com/osa030/sonora/internal/app/playback"
	"github.com/osa030/sonora/internal/domain/playlist"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/domain/view"
)

// LibraryState is the published library listing.
type LibraryState struct {
	Tracks    []track.Track       `json:"tracks"`
	Liked     []track.Track       `json:"liked"`
	Playlists []playlist.Playlist `json:"playlists"`
}

// LyricsResult is a lyrics lookup result. Lines is set for time-synced text.
type LyricsResult struct {
	TrackID string      `json:"trackId"`
	Text    string      `json:"text"`
	Found   bool        `json:"found"`
	Lines   []LyricLine `json:"lines,omitempty"`
}

// LyricLine is one time-synced lyrics line.
type LyricLine struct {
	TimeMs int64  `json:"timeMs"`
	Text   string `json:"text"`
}

// LibraryState returns the user's library.
func (m *Manager) LibraryState() LibraryState {
	return LibraryState{
		Tracks:    m.library.Tracks(),
		Liked:     m.library.Liked(),
		Playlists: m.library.Playlists(),
	}
}

// Play plays a known track from the list v resolves to and makes v the
// active view.
func (m *Manager) Play(trackID string, v view.View) error {
	t, ok := m.findTrack(trackID)
	if !ok {
		return library.ErrTrackNotFound
	}
	return m.PlayTrack(t, v)
}

// PlayTrack plays t, which need not be in the library (a search result), from
// the list v resolves to.
func (m *Manager) PlayTrack(t track.Track, v view.View) error {
	if t.ID == "" {
		return errors.New("track id is required")
	}
	if err := v.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.view = v
	m.mu.Unlock()

	m.playback.PlayTrack(t, m.sourceFor(v))
	return nil
}

// PlayFromHistory plays history entry i.
func (m *Manager) PlayFromHistory(i int) error {
	return m.playback.PlayFromHistory(i)
}

// TogglePlay pauses or resumes.
func (m *Manager) TogglePlay() error {
	return m.ignoreNoTrack(m.playback.TogglePlay())
}

// Next advances to the next track.
func (m *Manager) Next() error {
	return m.ignoreNoTrack(m.playback.Next())
}

// Previous restarts the current track or goes back in history.
func (m *Manager) Previous() error {
	return m.ignoreNoTrack(m.playback.Previous())
}

// Seek jumps to position within the current track.
func (m *Manager) Seek(position time.Duration) error {
	return m.ignoreNoTrack(m.playback.Seek(position))
}

// SetVolume sets the volume in [0, 1].
func (m *Manager) SetVolume(v float64) {
	m.playback.SetVolume(v)
}

// ToggleMute toggles mute.
func (m *Manager) ToggleMute() {
	m.playback.ToggleMute()
}

// ToggleShuffle toggles shuffle. Turning it off restores the active view's order.
func (m *Manager) ToggleShuffle() {
	m.playback.ToggleShuffle(m.sourceFor(m.View()))
}

// CycleRepeat moves to the next repeat mode.
func (m *Manager) CycleRepeat() mode.Repeat {
	return m.playback.CycleRepeat()
}

// PlayNext inserts a track right after the current one.
func (m *Manager) PlayNext(t track.Track) error {
	t, err := m.resolve(t)
	if err != nil {
		return err
	}
	return m.playback.PlayNext(t)
}

// Enqueue appends a track to the queue.
func (m *Manager) Enqueue(t track.Track) error {
	t, err := m.resolve(t)
	if err != nil {
		return err
	}
	return m.playback.Enqueue(t)
}

// RemoveFromQueue drops a track from the queue.
func (m *Manager) RemoveFromQueue(trackID string) {
	m.playback.RemoveFromQueue(trackID)
}

// ClearQueue drops every upcoming track.
func (m *Manager) ClearQueue() {
	m.playback.ClearQueue()
}

// ReorderQueue reorders the upcoming tracks.
func (m *Manager) ReorderQueue(upcomingIDs []string) error {
	return m.playback.Reorder(upcomingIDs)
}

// AddToLibrary adds a search result to the library.
func (m *Manager) AddToLibrary(t track.Track) (track.Track, error) {
	added, err := m.library.AddTrack(t)
	if err != nil {
		return track.Track{}, err
	}
	m.playback.ReplaceTrack(added)
	m.publishLibrary()
	return added, nil
}

// DeleteFromLibrary removes a track from the library, liked tracks,
// playlists, queue and history. Deleting the current track moves playback
// to the track that takes its place.
func (m *Manager) DeleteFromLibrary(trackID string) error {
	if err := m.library.DeleteTrack(trackID); err != nil {
		return err
	}
	m.playback.DeleteFromLibrary(trackID)
	m.lyrics.Forget(trackID)
	m.publishLibrary()
	return nil
}

// ToggleLike likes or unlikes a track and reports the new liked state.
func (m *Manager) ToggleLike(trackID string) (bool, error) {
	t, ok := m.findTrack(trackID)
	if !ok {
		return false, library.ErrTrackNotFound
	}
	liked, err := m.library.ToggleLike(t)
	if err != nil {
		return false, err
	}
	m.publishLibrary()
	return liked, nil
}

// CreatePlaylist creates an empty playlist.
func (m *Manager) CreatePlaylist(name string) (playlist.Playlist, error) {
	p, err := m.library.CreatePlaylist(name)
	if err != nil {
		return playlist.Playlist{}, err
	}
	m.publishLibrary()
	return p, nil
}

// DeletePlaylist deletes a playlist. An active view on it falls back to all
// songs.
func (m *Manager) DeletePlaylist(id string) error {
	if err := m.library.DeletePlaylist(id); err != nil {
		return err
	}

	m.mu.Lock()
	reset := m.view.Kind == view.KindPlaylist && m.view.PlaylistID == id
	if reset {
		m.view = view.AllSongs
	}
	m.mu.Unlock()

	m.publishLibrary()
	if reset {
		m.publish("view_changed")
	}
	return nil
}

// AddToPlaylist adds a known track to a playlist.
func (m *Manager) AddToPlaylist(playlistID, trackID string) error {
	t, ok := m.findTrack(trackID)
	if !ok {
		return library.ErrTrackNotFound
	}
	if err := m.library.AddToPlaylist(playlistID, t); err != nil {
		return err
	}
	m.publishLibrary()
	return nil
}

// RemoveFromPlaylist drops a track from a playlist.
func (m *Manager) RemoveFromPlaylist(playlistID, trackID string) error {
	if err := m.library.RemoveFromPlaylist(playlistID, trackID); err != nil {
		return err
	}
	m.publishLibrary()
	return nil
}

// Search returns candidate tracks for query. Failures yield no results.
func (m *Manager) Search(ctx context.Context, query string) []track.Track {
	if m.search == nil {
		return []track.Track{}
	}
	results, err := m.search.Search(ctx, query)
	if err != nil {
		zlog.Warn().Err(err).Msgf("session: search failed: query=%q", query)
		return []track.Track{}
	}
	if results == nil {
		return []track.Track{}
	}
	return results
}

// Lyrics returns the lyrics for a track, fetching them at most once and
// caching the result on the track record.
func (m *Manager) Lyrics(ctx context.Context, trackID string) (LyricsResult, error) {
	t, ok := m.findTrack(trackID)
	if !ok {
		return LyricsResult{}, library.ErrTrackNotFound
	}

	text, fetched := m.lyrics.Lookup(ctx, t)
	if fetched {
		updated, ok := m.library.UpdateLyrics(t.ID, text)
		if !ok {
			updated = t.WithLyrics(text)
		}
		m.playback.ReplaceTrack(updated)
	}

	result := LyricsResult{TrackID: t.ID, Text: text}
	cached := t.WithLyrics(text)
	result.Found = cached.HasLyrics()
	if result.Found {
		for _, line := range track.ParseLRC(text) {
			result.Lines = append(result.Lines, LyricLine{TimeMs: line.Time.Milliseconds(), Text: line.Text})
		}
	}
	return result, nil
}

// View returns the active content view.
func (m *Manager) View() view.View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// SetView changes the active content view without touching the queue.
func (m *Manager) SetView(v view.View) error {
	if err := v.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
	m.publish("view_changed")
	return nil
}

// Theme returns the theme preference.
func (m *Manager) Theme() Theme {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.theme
}

// SetTheme stores the theme preference.
func (m *Manager) SetTheme(theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	m.mu.Lock()
	m.theme = theme
	m.mu.Unlock()

	if m.local != nil {
		ctx, cancel := m.localContext()
		defer cancel()
		if err := m.local.Set(ctx, m.userID, KeyTheme, string(theme)); err != nil {
			zlog.Warn().Err(err).Msg("session: failed to save theme")
		}
	}
	m.publish("theme_changed")
	return nil
}

// sourceFor resolves a view to its track list.
func (m *Manager) sourceFor(v view.View) []track.Track {
	return view.QueueForView(v, m.library.Tracks(), m.library.Playlists(), m.library.Liked())
}

// resolve prefers the stored record for t when the library has one.
func (m *Manager) resolve(t track.Track) (track.Track, error) {
	if t.ID == "" {
		return track.Track{}, errors.New("track id is required")
	}
	if known, ok := m.findTrack(t.ID); ok {
		return known, nil
	}
	if t.Title == "" {
		return track.Track{}, library.ErrTrackNotFound
	}
	return t, nil
}

// findTrack looks a track up in the library, the current track, the queue
// and the history.
func (m *Manager) findTrack(id string) (track.Track, bool) {
	if t, ok := m.library.Track(id); ok {
		return t, true
	}
	if cur, ok := m.playback.GetCurrentTrack(); ok && cur.ID == id {
		return *cur, true
	}
	for _, list := range [][]track.Track{m.playback.GetQueuedTracks(), m.playback.GetHistory()} {
		if idx := track.IndexOf(list, id); idx != -1 {
			return list[idx], true
		}
	}
	return track.Track{}, false
}

// ignoreNoTrack turns the "nothing playing" precondition into a no-op.
func (m *Manager) ignoreNoTrack(err error) error {
	if errors.Is(err, playback.ErrNoTrack) {
		zlog.Debug().Msg("session: command ignored, no current track")
		return nil
	}
	return err
}
