// Package redisstore implements library.Store on Redis. Each collection is a
// hash of JSON records plus a list holding insertion order.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/playlist"
	"github.com/osa030/sonora/internal/domain/track"
)

const keyPrefix = "sonora:library:"

const (
	collTracks    = "tracks"
	collPlaylists = "playlists"
	collLiked     = "liked"
)

// Store is a Redis-backed library store.
type Store struct {
	rdb redis.UniversalClient
}

// New creates a store on an existing client.
func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

func dataKey(userID, coll string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, userID, coll)
}

func orderKey(userID, coll string) string {
	return dataKey(userID, coll) + ":order"
}

// SaveTrack implements library.Store.
func (s *Store) SaveTrack(ctx context.Context, userID string, t track.Track) error {
	return s.put(ctx, userID, collTracks, t.ID, t)
}

// DeleteTrack implements library.Store.
func (s *Store) DeleteTrack(ctx context.Context, userID, trackID string) error {
	return s.remove(ctx, userID, collTracks, trackID)
}

// ListTracks implements library.Store.
func (s *Store) ListTracks(ctx context.Context, userID string) ([]track.Track, error) {
	return list[track.Track](ctx, s.rdb, userID, collTracks)
}

// SavePlaylist implements library.Store.
func (s *Store) SavePlaylist(ctx context.Context, userID string, p playlist.Playlist) error {
	return s.put(ctx, userID, collPlaylists, p.ID, p)
}

// DeletePlaylist implements library.Store.
func (s *Store) DeletePlaylist(ctx context.Context, userID, playlistID string) error {
	return s.remove(ctx, userID, collPlaylists, playlistID)
}

// ListPlaylists implements library.Store.
func (s *Store) ListPlaylists(ctx context.Context, userID string) ([]playlist.Playlist, error) {
	return list[playlist.Playlist](ctx, s.rdb, userID, collPlaylists)
}

// LikeTrack implements library.Store.
func (s *Store) LikeTrack(ctx context.Context, userID string, t track.Track) error {
	return s.put(ctx, userID, collLiked, t.ID, t)
}

// UnlikeTrack implements library.Store.
func (s *Store) UnlikeTrack(ctx context.Context, userID, trackID string) error {
	return s.remove(ctx, userID, collLiked, trackID)
}

// ListLiked implements library.Store.
func (s *Store) ListLiked(ctx context.Context, userID string) ([]track.Track, error) {
	return list[track.Track](ctx, s.rdb, userID, collLiked)
}

// put upserts a record. New IDs are appended to the order list; updates keep
// their position.
func (s *Store) put(ctx context.Context, userID, coll, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s %s", coll, id)
	}
	added, err := s.rdb.HSet(ctx, dataKey(userID, coll), id, data).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to save %s %s", coll, id)
	}
	if added == 0 {
		return nil
	}
	if err := s.rdb.RPush(ctx, orderKey(userID, coll), id).Err(); err != nil {
		return errors.Wrapf(err, "failed to order %s %s", coll, id)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, userID, coll, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, dataKey(userID, coll), id)
		pipe.LRem(ctx, orderKey(userID, coll), 0, id)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete %s %s", coll, id)
	}
	return nil
}

func list[T any](ctx context.Context, rdb redis.UniversalClient, userID, coll string) ([]T, error) {
	ids, err := rdb.LRange(ctx, orderKey(userID, coll), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", coll)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := rdb.HMGet(ctx, dataKey(userID, coll), ids...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", coll)
	}

	out := make([]T, 0, len(values))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			// Order entry without a record.
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			zlog.Warn().Err(err).Msgf("redisstore: skipping corrupt %s record %s", coll, ids[i])
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
