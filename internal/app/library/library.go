// Package library provides the per-user library, playlist and liked-track
// collaborator. In-memory state is updated first and is authoritative; store
// writes are fired afterwards and only logged on failure.
package library

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/playlist"
	"github.com/osa030/sonora/internal/domain/track"
)

// Errors
var (
	ErrNotAuthenticated  = errors.WithHint(errors.New("not authenticated"), "sign in to change your library")
	ErrAlreadyInLibrary  = errors.New("track is already in the library")
	ErrTrackNotFound     = errors.New("track not found")
	ErrPlaylistNotFound  = errors.New("playlist not found")
	ErrAlreadyInPlaylist = errors.New("track is already in the playlist")
)

// Store persists one user's library. All methods are scoped to userID.
type Store interface {
	SaveTrack(ctx context.Context, userID string, t track.Track) error
	DeleteTrack(ctx context.Context, userID, trackID string) error
	ListTracks(ctx context.Context, userID string) ([]track.Track, error)
	SavePlaylist(ctx context.Context, userID string, p playlist.Playlist) error
	DeletePlaylist(ctx context.Context, userID, playlistID string) error
	ListPlaylists(ctx context.Context, userID string) ([]playlist.Playlist, error)
	LikeTrack(ctx context.Context, userID string, t track.Track) error
	UnlikeTrack(ctx context.Context, userID, trackID string) error
	ListLiked(ctx context.Context, userID string) ([]track.Track, error)
}

// writeTimeout bounds a single fire-and-forget store write.
const writeTimeout = 10 * time.Second

// Service is one user's library.
type Service struct {
	mu sync.RWMutex

	userID    string
	store     Store
	tracks    []track.Track
	playlists []playlist.Playlist
	liked     []track.Track

	writes sync.WaitGroup
}

// NewService creates an empty library for userID. An empty userID is an
// anonymous user: reads work, mutations fail with ErrNotAuthenticated.
func NewService(userID string, store Store) *Service {
	return &Service{
		userID:    userID,
		store:     store,
		tracks:    make([]track.Track, 0),
		playlists: make([]playlist.Playlist, 0),
		liked:     make([]track.Track, 0),
	}
}

// UserID returns the owning user id.
func (s *Service) UserID() string {
	return s.userID
}

// Authenticated reports whether the library belongs to a signed-in user.
func (s *Service) Authenticated() bool {
	return s.userID != ""
}

// Load reads the library from the store, replacing the in-memory state.
func (s *Service) Load(ctx context.Context) error {
	if !s.Authenticated() || s.store == nil {
		return nil
	}

	tracks, err := s.store.ListTracks(ctx, s.userID)
	if err != nil {
		return errors.Wrap(err, "failed to list tracks")
	}
	playlists, err := s.store.ListPlaylists(ctx, s.userID)
	if err != nil {
		return errors.Wrap(err, "failed to list playlists")
	}
	liked, err := s.store.ListLiked(ctx, s.userID)
	if err != nil {
		return errors.Wrap(err, "failed to list liked tracks")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = nonNil(tracks)
	s.playlists = playlists
	if s.playlists == nil {
		s.playlists = make([]playlist.Playlist, 0)
	}
	s.liked = nonNil(liked)

	zlog.Debug().Msgf("library: loaded: user=%s tracks=%d playlists=%d liked=%d",
		s.userID, len(s.tracks), len(s.playlists), len(s.liked))
	return nil
}

// Tracks returns a copy of every track in the library.
func (s *Service) Tracks() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.tracks)
}

// Liked returns a copy of the liked tracks.
func (s *Service) Liked() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.liked)
}

// Playlists returns deep copies of the playlists.
func (s *Service) Playlists() []playlist.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]playlist.Playlist, len(s.playlists))
	for i, p := range s.playlists {
		out[i] = p.Clone()
	}
	return out
}

// Track looks up a library track by id.
func (s *Service) Track(id string) (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := track.IndexOf(s.tracks, id)
	if idx == -1 {
		return track.Track{}, false
	}
	return s.tracks[idx], true
}

// IsLiked reports whether the track is liked.
func (s *Service) IsLiked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return track.IndexOf(s.liked, id) != -1
}

// AddTrack adds a search result to the library. The title is cleaned of the
// artist prefix and video noise, and the album art defaults to the
// max-resolution thumbnail.
func (s *Service) AddTrack(t track.Track) (track.Track, error) {
	if !s.Authenticated() {
		return track.Track{}, ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := track.IndexOf(s.tracks, t.ID); idx != -1 {
		return track.Track{}, errors.Wrapf(ErrAlreadyInLibrary, "%q", s.tracks[idx].Title)
	}

	t.Title = track.CleanTitle(t.Title, t.Artist)
	t.AlbumArtURL = track.DefaultAlbumArtURL(t.ID)
	s.tracks = append(s.tracks, t)

	s.writeAsync("save track", func(ctx context.Context) error {
		return s.store.SaveTrack(ctx, s.userID, t)
	})
	zlog.Info().Msgf("library: track added: user=%s track=%s title=%s", s.userID, t.ID, t.Title)
	return t, nil
}

// DeleteTrack removes a track from the library, the liked tracks and every
// playlist holding it.
func (s *Service) DeleteTrack(id string) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := track.IndexOf(s.tracks, id)
	if idx == -1 {
		return ErrTrackNotFound
	}
	s.tracks = append(s.tracks[:idx:idx], s.tracks[idx+1:]...)
	s.liked = without(s.liked, id)

	var changed []playlist.Playlist
	for i := range s.playlists {
		if s.playlists[i].Remove(id) {
			changed = append(changed, s.playlists[i].Clone())
		}
	}

	s.writeAsync("delete track", func(ctx context.Context) error {
		if err := s.store.DeleteTrack(ctx, s.userID, id); err != nil {
			return err
		}
		if err := s.store.UnlikeTrack(ctx, s.userID, id); err != nil {
			return err
		}
		for _, p := range changed {
			if err := s.store.SavePlaylist(ctx, s.userID, p); err != nil {
				return err
			}
		}
		return nil
	})
	zlog.Info().Msgf("library: track deleted: user=%s track=%s playlists=%d", s.userID, id, len(changed))
	return nil
}

// ToggleLike likes t, or unlikes it when already liked. It returns the new
// liked state.
func (s *Service) ToggleLike(t track.Track) (bool, error) {
	if !s.Authenticated() {
		return false, ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if track.IndexOf(s.liked, t.ID) != -1 {
		s.liked = without(s.liked, t.ID)
		s.writeAsync("unlike track", func(ctx context.Context) error {
			return s.store.UnlikeTrack(ctx, s.userID, t.ID)
		})
		return false, nil
	}

	s.liked = append(s.liked, t)
	s.writeAsync("like track", func(ctx context.Context) error {
		return s.store.LikeTrack(ctx, s.userID, t)
	})
	return true, nil
}

// CreatePlaylist creates an empty playlist.
func (s *Service) CreatePlaylist(name string) (playlist.Playlist, error) {
	if !s.Authenticated() {
		return playlist.Playlist{}, ErrNotAuthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return playlist.Playlist{}, errors.New("playlist name is required")
	}

	p := playlist.Playlist{
		ID:     "playlist-" + uuid.New().String(),
		Name:   name,
		Tracks: make([]track.Track, 0),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlists = append(s.playlists, p)

	saved := p.Clone()
	s.writeAsync("save playlist", func(ctx context.Context) error {
		return s.store.SavePlaylist(ctx, s.userID, saved)
	})
	return saved, nil
}

// DeletePlaylist removes a playlist.
func (s *Service) DeletePlaylist(id string) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.playlistIndexLocked(id)
	if idx == -1 {
		return ErrPlaylistNotFound
	}
	s.playlists = append(s.playlists[:idx:idx], s.playlists[idx+1:]...)
	s.writeAsync("delete playlist", func(ctx context.Context) error {
		return s.store.DeletePlaylist(ctx, s.userID, id)
	})
	return nil
}

// AddToPlaylist appends t to a playlist.
func (s *Service) AddToPlaylist(playlistID string, t track.Track) error {
	return s.editPlaylist(playlistID, func(p *playlist.Playlist) error {
		if !p.Add(t) {
			return ErrAlreadyInPlaylist
		}
		return nil
	})
}

// RemoveFromPlaylist drops a track from a playlist.
func (s *Service) RemoveFromPlaylist(playlistID, trackID string) error {
	return s.editPlaylist(playlistID, func(p *playlist.Playlist) error {
		if !p.Remove(trackID) {
			return ErrTrackNotFound
		}
		return nil
	})
}

func (s *Service) editPlaylist(id string, edit func(p *playlist.Playlist) error) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.playlistIndexLocked(id)
	if idx == -1 {
		return ErrPlaylistNotFound
	}
	if err := edit(&s.playlists[idx]); err != nil {
		return err
	}

	saved := s.playlists[idx].Clone()
	s.writeAsync("save playlist", func(ctx context.Context) error {
		return s.store.SavePlaylist(ctx, s.userID, saved)
	})
	return nil
}

// Playlist looks up a playlist by id.
func (s *Service) Playlist(id string) (playlist.Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.playlistIndexLocked(id)
	if idx == -1 {
		return playlist.Playlist{}, false
	}
	return s.playlists[idx].Clone(), true
}

// UpdateDuration records a measured duration for a track whose stored
// duration is unknown. It returns the updated track.
func (s *Service) UpdateDuration(id string, d time.Duration) (track.Track, bool) {
	if d <= 0 {
		return track.Track{}, false
	}
	return s.updateTrack(id, "save duration", func(t *track.Track) bool {
		if t.Duration == d {
			return false
		}
		t.Duration = d
		return true
	})
}

// UpdateLyrics caches a lyrics lookup result on a track.
func (s *Service) UpdateLyrics(id, lyrics string) (track.Track, bool) {
	return s.updateTrack(id, "save lyrics", func(t *track.Track) bool {
		*t = t.WithLyrics(lyrics)
		return true
	})
}

// updateTrack applies update to the library copy of a track and propagates
// the new record to the liked tracks and playlists.
func (s *Service) updateTrack(id, op string, update func(t *track.Track) bool) (track.Track, bool) {
	if !s.Authenticated() {
		return track.Track{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := track.IndexOf(s.tracks, id)
	if idx == -1 {
		return track.Track{}, false
	}
	t := s.tracks[idx]
	if !update(&t) {
		return track.Track{}, false
	}
	s.replaceLocked(t)

	s.writeAsync(op, func(ctx context.Context) error {
		return s.store.SaveTrack(ctx, s.userID, t)
	})
	return t, true
}

// MigrateAlbumArt rewrites legacy thumbnail URLs to the max-resolution URL
// everywhere in the library and saves the changed records. It returns the
// number of changed library tracks.
func (s *Service) MigrateAlbumArt() int {
	if !s.Authenticated() {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		tracks    []track.Track
		liked     []track.Track
		playlists []playlist.Playlist
	)
	for i := range s.tracks {
		if migrateArt(&s.tracks[i]) {
			tracks = append(tracks, s.tracks[i])
		}
	}
	for i := range s.liked {
		if migrateArt(&s.liked[i]) {
			liked = append(liked, s.liked[i])
		}
	}
	for i := range s.playlists {
		changed := false
		for j := range s.playlists[i].Tracks {
			if migrateArt(&s.playlists[i].Tracks[j]) {
				changed = true
			}
		}
		if changed {
			playlists = append(playlists, s.playlists[i].Clone())
		}
	}

	if len(tracks)+len(liked)+len(playlists) == 0 {
		zlog.Debug().Msgf("library: no album art migration needed: user=%s", s.userID)
		return 0
	}

	s.writeAsync("migrate album art", func(ctx context.Context) error {
		for _, t := range tracks {
			if err := s.store.SaveTrack(ctx, s.userID, t); err != nil {
				return err
			}
		}
		for _, t := range liked {
			if err := s.store.LikeTrack(ctx, s.userID, t); err != nil {
				return err
			}
		}
		for _, p := range playlists {
			if err := s.store.SavePlaylist(ctx, s.userID, p); err != nil {
				return err
			}
		}
		return nil
	})
	zlog.Info().Msgf("library: album art migrated: user=%s tracks=%d liked=%d playlists=%d",
		s.userID, len(tracks), len(liked), len(playlists))
	return len(tracks)
}

// Flush waits for pending store writes.
func (s *Service) Flush() {
	s.writes.Wait()
}

// Must be called with lock held.
func (s *Service) replaceLocked(t track.Track) {
	if idx := track.IndexOf(s.tracks, t.ID); idx != -1 {
		s.tracks[idx] = t
	}
	if idx := track.IndexOf(s.liked, t.ID); idx != -1 {
		s.liked[idx] = t
	}
	for i := range s.playlists {
		s.playlists[i].Replace(t)
	}
}

// Must be called with lock held.
func (s *Service) playlistIndexLocked(id string) int {
	for i, p := range s.playlists {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// writeAsync runs a store write in the background. Failures are logged and
// never roll back the in-memory state.
func (s *Service) writeAsync(op string, write func(ctx context.Context) error) {
	if s.store == nil {
		return
	}
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			zlog.Warn().Err(err).Msgf("library: %s failed: user=%s", op, s.userID)
		}
	}()
}

func migrateArt(t *track.Track) bool {
	if t.AlbumArtURL != "" && strings.Contains(t.AlbumArtURL, "maxresdefault.jpg") {
		return false
	}
	t.AlbumArtURL = track.DefaultAlbumArtURL(t.ID)
	return true
}

func without(tracks []track.Track, id string) []track.Track {
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func clone(tracks []track.Track) []track.Track {
	out := make([]track.Track, len(tracks))
	copy(out, tracks)
	return out
}

func nonNil(tracks []track.Track) []track.Track {
	if tracks == nil {
		return make([]track.Track, 0)
	}
	return tracks
}
