// Package queue provides the ordered play queue and its editing operations.
package queue

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/sonora/internal/domain/track"
)

// Errors
var (
	ErrAlreadyQueued  = errors.New("track is already queued")
	ErrNoCurrentTrack = errors.New("no current track in queue")
	ErrInvalidReorder = errors.New("reorder must contain exactly the upcoming tracks")
)

// Shuffler returns a random permutation of tracks. It may reorder in place.
type Shuffler func([]track.Track) []track.Track

// RandomShuffler is the default Fisher-Yates shuffler.
func RandomShuffler(tracks []track.Track) []track.Track {
	return lo.Shuffle(tracks)
}

// Manager owns the ordered list of tracks that will play, starting from the
// current one. It is not safe for concurrent use; the playback controller
// serialises access.
type Manager struct {
	tracks  []track.Track
	shuffle Shuffler
}

// New creates an empty queue. A nil shuffler selects RandomShuffler.
func New(shuffle Shuffler) *Manager {
	if shuffle == nil {
		shuffle = RandomShuffler
	}
	return &Manager{
		tracks:  make([]track.Track, 0),
		shuffle: shuffle,
	}
}

// Tracks returns a copy of the queue.
func (m *Manager) Tracks() []track.Track {
	result := make([]track.Track, len(m.tracks))
	copy(result, m.tracks)
	return result
}

// Len returns the number of queued tracks.
func (m *Manager) Len() int {
	return len(m.tracks)
}

// At returns the track at index i.
func (m *Manager) At(i int) (track.Track, bool) {
	if i < 0 || i >= len(m.tracks) {
		return track.Track{}, false
	}
	return m.tracks[i], true
}

// IndexOf returns the index of trackID, or -1.
func (m *Manager) IndexOf(trackID string) int {
	return track.IndexOf(m.tracks, trackID)
}

// Contains reports whether trackID is anywhere in the queue.
func (m *Manager) Contains(trackID string) bool {
	return m.IndexOf(trackID) != -1
}

// Replace swaps the whole queue.
func (m *Manager) Replace(tracks []track.Track) {
	m.tracks = clone(tracks)
}

// Rotate builds the queue for playing t from source. With shuffle off the
// queue is source rotated so t is first; with shuffle on source is permuted
// and t moved to the front. A t absent from source is prepended.
func (m *Manager) Rotate(t track.Track, source []track.Track, shuffle bool) {
	if len(source) == 0 {
		m.tracks = []track.Track{t}
		return
	}

	tracks := clone(source)
	if shuffle {
		tracks = m.shuffle(tracks)
		idx := track.IndexOf(tracks, t.ID)
		if idx == -1 {
			m.tracks = append([]track.Track{t}, tracks...)
			return
		}
		rest := append(clone(tracks[:idx]), tracks[idx+1:]...)
		m.tracks = append([]track.Track{tracks[idx]}, rest...)
		return
	}

	idx := track.IndexOf(tracks, t.ID)
	if idx == -1 {
		m.tracks = append([]track.Track{t}, tracks...)
		return
	}
	m.tracks = append(clone(tracks[idx:]), tracks[:idx]...)
}

// InsertNext places t right after the current track. Nothing is inserted
// when t is already queued or the current track is not in the queue.
func (m *Manager) InsertNext(currentID string, t track.Track) error {
	if m.Contains(t.ID) {
		return ErrAlreadyQueued
	}
	idx := m.IndexOf(currentID)
	if idx == -1 {
		return ErrNoCurrentTrack
	}

	pos := idx + 1
	tracks := make([]track.Track, 0, len(m.tracks)+1)
	tracks = append(tracks, m.tracks[:pos]...)
	tracks = append(tracks, t)
	tracks = append(tracks, m.tracks[pos:]...)
	m.tracks = tracks
	return nil
}

// Append adds t at the end unless it is already queued.
func (m *Manager) Append(t track.Track) error {
	if m.Contains(t.ID) {
		return ErrAlreadyQueued
	}
	m.tracks = append(m.tracks, t)
	return nil
}

// PushFront moves t to the front, dropping any other occurrence.
func (m *Manager) PushFront(t track.Track) {
	rest := lo.Filter(m.tracks, func(item track.Track, _ int) bool {
		return item.ID != t.ID
	})
	m.tracks = append([]track.Track{t}, rest...)
}

// Remove drops every occurrence of trackID and reports how many were removed.
func (m *Manager) Remove(trackID string) int {
	before := len(m.tracks)
	m.tracks = lo.Filter(m.tracks, func(item track.Track, _ int) bool {
		return item.ID != trackID
	})
	return before - len(m.tracks)
}

// ClearUpcoming truncates the queue to at most the current track.
func (m *Manager) ClearUpcoming(currentID string) {
	idx := m.IndexOf(currentID)
	if idx == -1 {
		m.tracks = make([]track.Track, 0)
		return
	}
	m.tracks = []track.Track{m.tracks[idx]}
}

// Reorder replaces the upcoming portion (everything after the current track)
// with the given ID order. The prefix up to and including the current track
// keeps its position.
func (m *Manager) Reorder(currentID string, upcomingIDs []string) error {
	idx := m.IndexOf(currentID)
	prefix := m.tracks[:idx+1]
	upcoming := m.tracks[idx+1:]

	if len(upcomingIDs) != len(upcoming) {
		return errors.Wrapf(ErrInvalidReorder, "got %d ids for %d upcoming tracks", len(upcomingIDs), len(upcoming))
	}

	byID := lo.KeyBy(upcoming, func(t track.Track) string { return t.ID })
	seen := make(map[string]bool, len(upcomingIDs))
	reordered := make([]track.Track, 0, len(upcomingIDs))
	for _, id := range upcomingIDs {
		t, ok := byID[id]
		if !ok || seen[id] {
			return errors.Wrapf(ErrInvalidReorder, "unexpected track id %q", id)
		}
		seen[id] = true
		reordered = append(reordered, t)
	}

	m.tracks = append(clone(prefix), reordered...)
	return nil
}

// ShuffleUpcoming permutes only the tracks strictly after the current one.
// It is a no-op when there is no current track in the queue.
func (m *Manager) ShuffleUpcoming(currentID string) {
	idx := m.IndexOf(currentID)
	if idx == -1 {
		return
	}
	upcoming := m.shuffle(clone(m.tracks[idx+1:]))
	m.tracks = append(clone(m.tracks[:idx+1]), upcoming...)
}

// Restore rebuilds the queue from source rotated to the current track. The
// queue is left as is when the current track is not part of source.
func (m *Manager) Restore(source []track.Track, currentID string) bool {
	idx := track.IndexOf(source, currentID)
	if idx == -1 {
		return false
	}
	tracks := clone(source)
	m.tracks = append(clone(tracks[idx:]), tracks[:idx]...)
	return true
}

// ReplaceTrack swaps in an updated record wherever its ID appears.
func (m *Manager) ReplaceTrack(t track.Track) bool {
	replaced := false
	for i := range m.tracks {
		if m.tracks[i].ID == t.ID {
			m.tracks[i] = t
			replaced = true
		}
	}
	return replaced
}

func clone(tracks []track.Track) []track.Track {
	out := make([]track.Track, len(tracks))
	copy(out, tracks)
	return out
}
