package library

import (
	"context"
	"sync"

	"github.com/osa030/sonora/internal/domain/playlist"
	"github.com/osa030/sonora/internal/domain/track"
)

// MemoryStore is a process-local Store. Data is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userData
}

type userData struct {
	tracks    []track.Track
	playlists []playlist.Playlist
	liked     []track.Track
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*userData)}
}

func (m *MemoryStore) userLocked(userID string) *userData {
	u, ok := m.users[userID]
	if !ok {
		u = &userData{}
		m.users[userID] = u
	}
	return u
}

// SaveTrack implements Store.
func (m *MemoryStore) SaveTrack(_ context.Context, userID string, t track.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userLocked(userID)
	u.tracks = upsert(u.tracks, t)
	return nil
}

// DeleteTrack implements Store.
func (m *MemoryStore) DeleteTrack(_ context.Context, userID, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userLocked(userID)
	u.tracks = without(u.tracks, trackID)
	return nil
}

// ListTracks implements Store.
func (m *MemoryStore) ListTracks(_ context.Context, userID string) ([]track.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[userID]; ok {
		return clone(u.tracks), nil
	}
	return nil, nil
}

// SavePlaylist implements Store.
func (m *MemoryStore) SavePlaylist(_ context.Context, userID string, p playlist.Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userLocked(userID)
	p = p.Clone()
	for i := range u.playlists {
		if u.playlists[i].ID == p.ID {
			u.playlists[i] = p
			return nil
		}
	}
	u.playlists = append(u.playlists, p)
	return nil
}

// DeletePlaylist implements Store.
func (m *MemoryStore) DeletePlaylist(_ context.Context, userID, playlistID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userLocked(userID)
	kept := make([]playlist.Playlist, 0, len(u.playlists))
	for _, p := range u.playlists {
		if p.ID != playlistID {
			kept = append(kept, p)
		}
	}
	u.playlists = kept
	return nil
}

// ListPlaylists implements Store.
func (m *MemoryStore) ListPlaylists(_ context.Context, userID string) ([]playlist.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]playlist.Playlist, len(u.playlists))
	for i, p := range u.playlists {
		out[i] = p.Clone()
	}
	return out, nil
}

// LikeTrack implements Store.
func (m *MemoryStore) LikeTrack(_ context.Context, userID string, t track.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userLocked(userID)
	u.liked = upsert(u.liked, t)
	return nil
}

// UnlikeTrack implements Store.
func (m *MemoryStore) UnlikeTrack(_ context.Context, userID, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userLocked(userID)
	u.liked = without(u.liked, trackID)
	return nil
}

// ListLiked implements Store.
func (m *MemoryStore) ListLiked(_ context.Context, userID string) ([]track.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[userID]; ok {
		return clone(u.liked), nil
	}
	return nil, nil
}

func upsert(tracks []track.Track, t track.Track) []track.Track {
	if idx := track.IndexOf(tracks, t.ID); idx != -1 {
		tracks[idx] = t
		return tracks
	}
	return append(tracks, t)
}
