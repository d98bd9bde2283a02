// Package pgstore implements library.Store on PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/playlist"
	"github.com/osa030/sonora/internal/domain/track"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS library_tracks (
	seq         BIGSERIAL,
	user_id     TEXT NOT NULL,
	id          TEXT NOT NULL,
	title       TEXT NOT NULL,
	artist      TEXT NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	album_art   TEXT NOT NULL DEFAULT '',
	lyrics      TEXT,
	PRIMARY KEY (user_id, id)
);
CREATE TABLE IF NOT EXISTS liked_tracks (
	seq     BIGSERIAL,
	user_id TEXT NOT NULL,
	id      TEXT NOT NULL,
	data    JSONB NOT NULL,
	PRIMARY KEY (user_id, id)
);
CREATE TABLE IF NOT EXISTS playlists (
	seq     BIGSERIAL,
	user_id TEXT NOT NULL,
	id      TEXT NOT NULL,
	name    TEXT NOT NULL,
	tracks  JSONB NOT NULL,
	PRIMARY KEY (user_id, id)
);`

// Store is a PostgreSQL-backed library store.
type Store struct {
	db DB
}

// New creates a store on db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WithHint(errors.Wrap(err, "failed to reach postgres"), "check storage.postgres.dsn")
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate library schema")
	}
	zlog.Info().Msg("pgstore: schema ready")
	return nil
}

// SaveTrack implements library.Store.
func (s *Store) SaveTrack(ctx context.Context, userID string, t track.Track) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO library_tracks (user_id, id, title, artist, duration_ms, album_art, lyrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, id) DO UPDATE SET
			title = EXCLUDED.title,
			artist = EXCLUDED.artist,
			duration_ms = EXCLUDED.duration_ms,
			album_art = EXCLUDED.album_art,
			lyrics = EXCLUDED.lyrics`,
		userID, t.ID, t.Title, t.Artist, t.Duration.Milliseconds(), t.AlbumArtURL, t.Lyrics)
	if err != nil {
		return errors.Wrapf(err, "failed to save track %s", t.ID)
	}
	return nil
}

// DeleteTrack implements library.Store.
func (s *Store) DeleteTrack(ctx context.Context, userID, trackID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM library_tracks WHERE user_id = $1 AND id = $2`, userID, trackID); err != nil {
		return errors.Wrapf(err, "failed to delete track %s", trackID)
	}
	return nil
}

// ListTracks implements library.Store.
func (s *Store) ListTracks(ctx context.Context, userID string) ([]track.Track, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, artist, duration_ms, album_art, lyrics
		FROM library_tracks WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tracks")
	}
	defer rows.Close()

	var out []track.Track
	for rows.Next() {
		var (
			t          track.Track
			durationMs int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &durationMs, &t.AlbumArtURL, &t.Lyrics); err != nil {
			return nil, errors.Wrap(err, "failed to scan track")
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "failed to read tracks")
}

// SavePlaylist implements library.Store.
func (s *Store) SavePlaylist(ctx context.Context, userID string, p playlist.Playlist) error {
	tracks, err := json.Marshal(nonNil(p.Tracks))
	if err != nil {
		return errors.Wrapf(err, "failed to encode playlist %s", p.ID)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO playlists (user_id, id, name, tracks) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, id) DO UPDATE SET name = EXCLUDED.name, tracks = EXCLUDED.tracks`,
		userID, p.ID, p.Name, tracks)
	if err != nil {
		return errors.Wrapf(err, "failed to save playlist %s", p.ID)
	}
	return nil
}

// DeletePlaylist implements library.Store.
func (s *Store) DeletePlaylist(ctx context.Context, userID, playlistID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM playlists WHERE user_id = $1 AND id = $2`, userID, playlistID); err != nil {
		return errors.Wrapf(err, "failed to delete playlist %s", playlistID)
	}
	return nil
}

// ListPlaylists implements library.Store.
func (s *Store) ListPlaylists(ctx context.Context, userID string) ([]playlist.Playlist, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, tracks FROM playlists WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playlists")
	}
	defer rows.Close()

	var out []playlist.Playlist
	for rows.Next() {
		var (
			p   playlist.Playlist
			raw []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan playlist")
		}
		if err := json.Unmarshal(raw, &p.Tracks); err != nil {
			zlog.Warn().Err(err).Msgf("pgstore: playlist %s has corrupt tracks, loading empty", p.ID)
			p.Tracks = []track.Track{}
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "failed to read playlists")
}

// LikeTrack implements library.Store.
func (s *Store) LikeTrack(ctx context.Context, userID string, t track.Track) error {
	data, err := json.Marshal(t)
	if err != nil {
		return errors.Wrapf(err, "failed to encode track %s", t.ID)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO liked_tracks (user_id, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, id) DO UPDATE SET data = EXCLUDED.data`,
		userID, t.ID, data)
	if err != nil {
		return errors.Wrapf(err, "failed to like track %s", t.ID)
	}
	return nil
}

// UnlikeTrack implements library.Store.
func (s *Store) UnlikeTrack(ctx context.Context, userID, trackID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM liked_tracks WHERE user_id = $1 AND id = $2`, userID, trackID); err != nil {
		return errors.Wrapf(err, "failed to unlike track %s", trackID)
	}
	return nil
}

// ListLiked implements library.Store.
func (s *Store) ListLiked(ctx context.Context, userID string) ([]track.Track, error) {
	rows, err := s.db.Query(ctx,
		`SELECT data FROM liked_tracks WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list liked tracks")
	}
	defer rows.Close()

	var out []track.Track
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan liked track")
		}
		var t track.Track
		if err := json.Unmarshal(raw, &t); err != nil {
			zlog.Warn().Err(err).Msg("pgstore: skipping corrupt liked track")
			continue
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "failed to read liked tracks")
}

func nonNil(tracks []track.Track) []track.Track {
	if tracks == nil {
		return []track.Track{}
	}
	return tracks
}
