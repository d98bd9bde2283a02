// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/sonora/internal/domain/track"
)

// Playlist represents a user-created playlist.
type Playlist struct {
	ID     string        `json:"id"`    // Playlist ID
	Name   string        `json:"name"`  // Playlist name
	Tracks []track.Track `json:"songs"` // Tracks in the playlist
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return track.IDs(p.Tracks)
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return int64(total.Seconds())
}

// Contains reports whether the playlist holds a track with the given ID.
func (p *Playlist) Contains(trackID string) bool {
	return track.IndexOf(p.Tracks, trackID) != -1
}

// Add appends a track. It returns false when the track is already present.
func (p *Playlist) Add(t track.Track) bool {
	if p.Contains(t.ID) {
		return false
	}
	p.Tracks = append(p.Tracks, t)
	return true
}

// Remove drops every entry with the given ID and reports whether anything was removed.
func (p *Playlist) Remove(trackID string) bool {
	kept := p.Tracks[:0]
	removed := false
	for _, t := range p.Tracks {
		if t.ID == trackID {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	p.Tracks = kept
	return removed
}

// Replace swaps in an updated record for an existing track ID.
func (p *Playlist) Replace(t track.Track) bool {
	replaced := false
	for i := range p.Tracks {
		if p.Tracks[i].ID == t.ID {
			p.Tracks[i] = t
			replaced = true
		}
	}
	return replaced
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p Playlist) Clone() Playlist {
	tracks := make([]track.Track, len(p.Tracks))
	copy(tracks, p.Tracks)
	p.Tracks = tracks
	return p
}
