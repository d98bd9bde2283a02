package search

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/track"
)

// ErrAllProvidersFailed is returned when every provider errored.
var ErrAllProvidersFailed = errors.New("all search providers failed")

// Chain tries providers in order and returns the first non-empty result.
type Chain struct {
	providers []ProviderWithMetadata
	limit     int
}

// NewChain creates a new provider chain. limit caps each result.
func NewChain(providers []ProviderWithMetadata, limit int) *Chain {
	return &Chain{
		providers: providers,
		limit:     limit,
	}
}

// Search queries providers in order. An empty result from one provider moves
// on to the next; the chain only errors when every provider failed.
func (c *Chain) Search(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []track.Track{}, nil
	}

	failures := 0
	for i, pm := range c.providers {
		zlog.Debug().Msgf("search: trying provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		results, err := pm.Provider.Search(ctx, query, c.limit)
		if err != nil {
			failures++
			zlog.Warn().Msgf("search: provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}
		if len(results) == 0 {
			zlog.Debug().Msgf("search: provider returned no results: provider=%s", pm.DisplayName)
			continue
		}

		if c.limit > 0 && len(results) > c.limit {
			results = results[:c.limit]
		}
		zlog.Info().Msgf("search: provider returned results: provider=%s count=%d", pm.DisplayName, len(results))
		return results, nil
	}

	if failures > 0 && failures == len(c.providers) {
		return nil, ErrAllProvidersFailed
	}
	return []track.Track{}, nil
}

// Providers returns the registered providers in order.
func (c *Chain) Providers() []ProviderWithMetadata {
	out := make([]ProviderWithMetadata, len(c.providers))
	copy(out, c.providers)
	return out
}
