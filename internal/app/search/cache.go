package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/track"
)

const cacheKeyPrefix = "sonora:search:"

// CachedProvider stores successful non-empty results in redis.
type CachedProvider struct {
	next Provider
	rdb  redis.UniversalClient
	ttl  time.Duration
}

// NewCachedProvider wraps next with a redis cache.
func NewCachedProvider(next Provider, rdb redis.UniversalClient, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, rdb: rdb, ttl: ttl}
}

// Name returns the wrapped provider name.
func (p *CachedProvider) Name() string {
	return p.next.Name()
}

// Search serves from cache when possible. Cache failures fall through to the
// wrapped provider.
func (p *CachedProvider) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	key := cacheKey(p.next.Name(), query, limit)

	data, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []track.Track
		if err := json.Unmarshal(data, &cached); err == nil {
			zlog.Debug().Msgf("search: cache hit: key=%s", key)
			return cached, nil
		}
		zlog.Warn().Msgf("search: dropping corrupt cache entry: key=%s", key)
		p.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		zlog.Warn().Err(err).Msg("search: cache read failed")
	}

	results, err := p.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return results, nil
	}

	data, err = json.Marshal(results)
	if err != nil {
		return results, nil
	}
	if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
		zlog.Warn().Err(err).Msg("search: cache write failed")
	}
	return results, nil
}

// cacheKey normalises case and whitespace so equivalent queries share an entry.
func cacheKey(provider, query string, limit int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s%s:%d:%s", cacheKeyPrefix, provider, limit, normalized)
}
