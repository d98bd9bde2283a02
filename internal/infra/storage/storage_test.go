package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/infra/config"
	"github.com/osa030/sonora/internal/infra/redisstore"
)

func storageConfig(t *testing.T, backend, redisAddr string) config.StorageConfig {
	return config.StorageConfig{
		Backend:   backend,
		Redis:     config.RedisConfig{Addr: redisAddr},
		LocalPath: filepath.Join(t.TempDir(), "local.db"),
	}
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name      string
		backend   string
		redisAddr string
		withCache bool
		wantErr   bool
		wantRedis bool
		check     func(t *testing.T, s library.Store)
	}{
		{
			name:    "memory",
			backend: config.BackendMemory,
			check: func(t *testing.T, s library.Store) {
				assert.IsType(t, &library.MemoryStore{}, s)
			},
		},
		{
			name:      "memory with cache",
			backend:   config.BackendMemory,
			redisAddr: mr.Addr(),
			withCache: true,
			wantRedis: true,
		},
		{
			name:      "memory with unreachable cache",
			backend:   config.BackendMemory,
			redisAddr: "127.0.0.1:1",
			withCache: true,
		},
		{
			name:      "redis",
			backend:   config.BackendRedis,
			redisAddr: mr.Addr(),
			wantRedis: true,
			check: func(t *testing.T, s library.Store) {
				assert.IsType(t, &redisstore.Store{}, s)
				require.NoError(t, s.SaveTrack(context.Background(), "u1", track.Track{ID: "a"}))
			},
		},
		{
			name:      "redis unreachable",
			backend:   config.BackendRedis,
			redisAddr: "127.0.0.1:1",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(context.Background(), storageConfig(t, tt.backend, tt.redisAddr), tt.withCache)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer b.Close()

			require.NotNil(t, b.Local)
			require.NotNil(t, b.Library)
			assert.Equal(t, tt.wantRedis, b.Redis != nil)
			if tt.check != nil {
				tt.check(t, b.Library)
			}
		})
	}
}
