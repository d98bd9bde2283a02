// Package view provides the content views a user browses and plays from.
package view

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/sonora/internal/domain/playlist"
	"github.com/osa030/sonora/internal/domain/track"
)

// Kind identifies a content view.
type Kind string

const (
	KindAllSongs Kind = "all_songs" // Every track in the library
	KindLibrary  Kind = "library"   // Liked tracks
	KindPlaylist Kind = "playlist"  // A single playlist
)

// View is the content view a play request originates from.
type View struct {
	Kind       Kind   `json:"type"`
	PlaylistID string `json:"id,omitempty"`
}

// AllSongs is the default view.
var AllSongs = View{Kind: KindAllSongs}

// Validate checks the view is well-formed.
func (v View) Validate() error {
	switch v.Kind {
	case KindAllSongs, KindLibrary:
		return nil
	case KindPlaylist:
		if v.PlaylistID == "" {
			return errors.New("playlist view requires a playlist id")
		}
		return nil
	default:
		return errors.Newf("unknown view type: %q", v.Kind)
	}
}

// QueueForView returns the track list a view plays from.
// A playlist view whose playlist no longer exists falls back to all songs.
func QueueForView(v View, library []track.Track, playlists []playlist.Playlist, liked []track.Track) []track.Track {
	var source []track.Track
	switch v.Kind {
	case KindLibrary:
		source = liked
	case KindPlaylist:
		source = library
		for _, p := range playlists {
			if p.ID == v.PlaylistID {
				source = p.Tracks
				break
			}
		}
	default:
		source = library
	}

	out := make([]track.Track, len(source))
	copy(out, source)
	return out
}
