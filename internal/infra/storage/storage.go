// Package storage opens the persistence backends selected by configuration.
package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/infra/config"
	"github.com/osa030/sonora/internal/infra/localstore"
	"github.com/osa030/sonora/internal/infra/pgstore"
	"github.com/osa030/sonora/internal/infra/redisstore"
)

const pingTimeout = 5 * time.Second

// Backends holds the opened stores.
type Backends struct {
	Library library.Store
	Local   *localstore.Store
	// Redis is set when the redis backend is selected or the search cache
	// could reach the configured server.
	Redis redis.UniversalClient

	pool *pgxpool.Pool
}

// Open opens the library store for cfg.Backend and the local state store.
// withCache asks for a redis client even when the library lives elsewhere;
// an unreachable server then only disables the cache.
func Open(ctx context.Context, cfg config.StorageConfig, withCache bool) (*Backends, error) {
	b := &Backends{}

	local, err := localstore.Open(cfg.LocalPath)
	if err != nil {
		return nil, err
	}
	b.Local = local

	switch cfg.Backend {
	case config.BackendRedis:
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = rdb
		b.Library = redisstore.New(rdb)

	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
		store := pgstore.New(pool)
		if err := store.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Library = store

	default:
		b.Library = library.NewMemoryStore()
	}

	if withCache && b.Redis == nil {
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			zlog.Warn().Err(err).Msg("storage: redis unavailable, search cache disabled")
		} else {
			b.Redis = rdb
		}
	}

	zlog.Info().Msgf("storage: library backend=%s cache=%t", cfg.Backend, b.Redis != nil)
	return b, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, errors.WithHint(errors.Wrapf(err, "failed to reach redis at %s", cfg.Addr), "check storage.redis.addr")
	}
	return rdb, nil
}

// Close closes every opened backend.
func (b *Backends) Close() {
	if b.Local != nil {
		if err := b.Local.Close(); err != nil {
			zlog.Warn().Err(err).Msg("storage: failed to close local store")
		}
	}
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
