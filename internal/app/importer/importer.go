// Package importer imports Spotify playlists into a user's library by
// resolving each entry to a video through search.
package importer

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/infra/spotify"
)

// Source lists the entries of an external playlist.
type Source interface {
	PlaylistName(ctx context.Context, playlistURL string) (string, error)
	PlaylistTracks(ctx context.Context, playlistURL string) ([]spotify.Item, error)
}

// Searcher resolves a free-text query to video tracks.
type Searcher interface {
	Search(ctx context.Context, query string) ([]track.Track, error)
}

// Options control an import.
type Options struct {
	// CreatePlaylist also collects the imported tracks into a new playlist
	// named after the source playlist.
	CreatePlaylist bool
	// DryRun resolves tracks without touching the library.
	DryRun bool
}

// Result summarises an import.
type Result struct {
	PlaylistID string
	Imported   []track.Track
	Existing   []track.Track
	NotFound   []spotify.Item
}

// Importer imports playlists into one library.
type Importer struct {
	source   Source
	searcher Searcher
	lib      *library.Service
}

// New creates a new importer.
func New(source Source, searcher Searcher, lib *library.Service) *Importer {
	return &Importer{source: source, searcher: searcher, lib: lib}
}

// Import resolves every playlist entry and adds the matches to the library.
// Entries already in the library are kept and still added to the new playlist.
func (im *Importer) Import(ctx context.Context, playlistURL string, opts Options) (*Result, error) {
	if !opts.DryRun && !im.lib.Authenticated() {
		return nil, library.ErrNotAuthenticated
	}

	items, err := im.source.PlaylistTracks(ctx, playlistURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read playlist")
	}
	zlog.Info().Msgf("importer: playlist loaded: url=%s items=%d", playlistURL, len(items))

	result := &Result{}
	var resolved []track.Track

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "import cancelled")
		}

		matches, err := im.searcher.Search(ctx, item.SearchQuery())
		if err != nil || len(matches) == 0 {
			zlog.Warn().Msgf("importer: no match: index=%d query=%q error=%v", i+1, item.SearchQuery(), err)
			result.NotFound = append(result.NotFound, item)
			continue
		}

		t := matches[0]
		if t.NeedsDuration() {
			t.Duration = item.Duration
		}

		if opts.DryRun {
			result.Imported = append(result.Imported, t)
			continue
		}

		if existing, ok := im.lib.Track(t.ID); ok {
			result.Existing = append(result.Existing, existing)
			resolved = append(resolved, existing)
			continue
		}

		added, err := im.lib.AddTrack(t)
		if err != nil {
			if errors.Is(err, library.ErrAlreadyInLibrary) {
				continue
			}
			return result, errors.Wrapf(err, "failed to add %q", t.Title)
		}
		result.Imported = append(result.Imported, added)
		resolved = append(resolved, added)
		zlog.Debug().Msgf("importer: imported: index=%d id=%s title=%s", i+1, added.ID, added.Title)
	}

	if opts.CreatePlaylist && !opts.DryRun && len(resolved) > 0 {
		id, err := im.fillPlaylist(ctx, playlistURL, resolved)
		if err != nil {
			return result, err
		}
		result.PlaylistID = id
	}

	zlog.Info().Msgf("importer: done: imported=%d existing=%d not_found=%d",
		len(result.Imported), len(result.Existing), len(result.NotFound))
	return result, nil
}

func (im *Importer) fillPlaylist(ctx context.Context, playlistURL string, tracks []track.Track) (string, error) {
	name, err := im.source.PlaylistName(ctx, playlistURL)
	if err != nil || name == "" {
		zlog.Warn().Msgf("importer: playlist name unavailable, using default: error=%v", err)
		name = "Imported playlist"
	}

	p, err := im.lib.CreatePlaylist(name)
	if err != nil {
		return "", errors.Wrap(err, "failed to create playlist")
	}
	for _, t := range tracks {
		if err := im.lib.AddToPlaylist(p.ID, t); err != nil && !errors.Is(err, library.ErrAlreadyInPlaylist) {
			return p.ID, errors.Wrapf(err, "failed to add %q to playlist", t.Title)
		}
	}
	return p.ID, nil
}
