// Package lyrics provides lazy, once-per-track lyrics lookup.
package lyrics

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/track"
)

// ErrNotFound is returned by a Fetcher when no lyrics exist.
var ErrNotFound = errors.New("lyrics not found")

// Fetcher retrieves lyrics text for a track by title and artist.
type Fetcher interface {
	Lyrics(ctx context.Context, title, artist string) (string, error)
}

// NotFoundFunc reports whether a fetcher error means "no lyrics exist".
type NotFoundFunc func(err error) bool

// Service resolves lyrics for tracks. A result, including the "not found"
// and "fetch failed" sentinels, is fetched at most once per track id.
type Service struct {
	fetcher  Fetcher
	notFound NotFoundFunc

	mu    sync.Mutex
	cache map[string]string
}

// NewService creates a lyrics service. notFound may be nil, in which case
// only ErrNotFound counts as "no lyrics".
func NewService(fetcher Fetcher, notFound NotFoundFunc) *Service {
	if notFound == nil {
		notFound = func(err error) bool { return errors.Is(err, ErrNotFound) }
	}
	return &Service{
		fetcher:  fetcher,
		notFound: notFound,
		cache:    make(map[string]string),
	}
}

// Lookup returns the lyrics for t. fetched is true when the text came from
// the fetcher during this call and should be cached onto the track record.
func (s *Service) Lookup(ctx context.Context, t track.Track) (text string, fetched bool) {
	if t.LyricsFetched() {
		return *t.Lyrics, false
	}

	s.mu.Lock()
	if cached, ok := s.cache[t.ID]; ok {
		s.mu.Unlock()
		return cached, false
	}
	s.mu.Unlock()

	text = s.fetch(ctx, t)

	s.mu.Lock()
	s.cache[t.ID] = text
	s.mu.Unlock()
	return text, true
}

func (s *Service) fetch(ctx context.Context, t track.Track) string {
	if s.fetcher == nil {
		return track.LyricsNotFound
	}

	text, err := s.fetcher.Lyrics(ctx, t.Title, t.Artist)
	switch {
	case err == nil && text != "":
		return text
	case err == nil || s.notFound(err):
		zlog.Debug().Msgf("lyrics: none found: track=%s", t.ID)
		return track.LyricsNotFound
	default:
		zlog.Warn().Err(err).Msgf("lyrics: fetch failed: track=%s", t.ID)
		return track.LyricsFetchError
	}
}

// Forget drops the cached result for a track so it can be fetched again.
func (s *Service) Forget(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, trackID)
}
