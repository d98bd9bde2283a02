// Package track provides the Track domain entity.
package track

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lyrics sentinels stored on a track once a lookup has been attempted.
const (
	LyricsNotFound   = "No lyrics found."
	LyricsFetchError = "Error fetching lyrics."
)

// unknownDurationCeiling is the largest duration still treated as "not measured yet".
const unknownDurationCeiling = time.Second

// Track represents a playable video-platform track in a user's library.
type Track struct {
	ID          string        // Video ID (globally unique)
	Title       string        // Track title
	Artist      string        // Artist (channel) name
	Duration    time.Duration // Track duration (0 until measured)
	AlbumArtURL string        // Album art URL
	Lyrics      *string       // nil = not fetched yet
}

// wireTrack is the JSON form of Track.
type wireTrack struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	DurationMs int64   `json:"durationMs"`
	AlbumArt   string  `json:"albumArt"`
	Lyrics     *string `json:"lyrics,omitempty"`
}

// MarshalJSON encodes the track with its duration in milliseconds.
func (t Track) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTrack{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		DurationMs: t.Duration.Milliseconds(),
		AlbumArt:   t.AlbumArtURL,
		Lyrics:     t.Lyrics,
	})
}

// UnmarshalJSON decodes the millisecond-based wire form.
func (t *Track) UnmarshalJSON(data []byte) error {
	var w wireTrack
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Track{
		ID:          w.ID,
		Title:       w.Title,
		Artist:      w.Artist,
		Duration:    time.Duration(w.DurationMs) * time.Millisecond,
		AlbumArtURL: w.AlbumArt,
		Lyrics:      w.Lyrics,
	}
	return nil
}

// NeedsDuration reports whether the stored duration is still unknown.
func (t *Track) NeedsDuration() bool {
	return t.Duration <= unknownDurationCeiling
}

// LyricsFetched reports whether a lyrics lookup result is cached on the track.
func (t *Track) LyricsFetched() bool {
	return t.Lyrics != nil
}

// HasLyrics reports whether the track carries real lyrics text (not a sentinel).
func (t *Track) HasLyrics() bool {
	if t.Lyrics == nil {
		return false
	}
	switch *t.Lyrics {
	case "", LyricsNotFound, LyricsFetchError:
		return false
	}
	return true
}

// WithLyrics returns a copy of the track carrying the given lyrics text.
func (t Track) WithLyrics(text string) Track {
	t.Lyrics = &text
	return t
}

// DefaultAlbumArtURL returns the max-resolution thumbnail URL for a video ID.
func DefaultAlbumArtURL(id string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", id)
}

// IndexOf returns the index of the first track with the given ID, or -1.
func IndexOf(tracks []Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// IDs returns the IDs of the given tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
