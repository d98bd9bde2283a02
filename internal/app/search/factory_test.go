package search

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/sonora/internal/infra/config"
)

func TestNewChainFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		providers []config.ProviderConfig
		wantErr   bool
		wantTypes []string
	}{
		{
			name: "invidious with defaults",
			providers: []config.ProviderConfig{
				{Type: TypeInvidious, DisplayName: "Invidious"},
			},
			wantTypes: []string{TypeInvidious},
		},
		{
			name: "both providers",
			providers: []config.ProviderConfig{
				{Type: TypeYouTube, DisplayName: "YouTube", Settings: map[string]any{"api_key": "k"}},
				{Type: TypeInvidious, DisplayName: "Invidious", Settings: map[string]any{
					"instances": []string{"https://example.org"},
				}},
			},
			wantTypes: []string{TypeYouTube, TypeInvidious},
		},
		{
			name: "youtube without api key",
			providers: []config.ProviderConfig{
				{Type: TypeYouTube, DisplayName: "YouTube"},
			},
			wantErr: true,
		},
		{
			name: "invalid settings type",
			providers: []config.ProviderConfig{
				{Type: TypeInvidious, DisplayName: "Invidious", Settings: map[string]any{"timeout_seconds": "soon"}},
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			providers: []config.ProviderConfig{
				{Type: "soundcloud", DisplayName: "SC"},
			},
			wantErr: true,
		},
		{
			name:    "no providers",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewChainFromConfig(config.SearchConfig{
				ResultLimit: 10,
				Providers:   tt.providers,
			}, nil)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var types []string
			for _, pm := range chain.Providers() {
				types = append(types, pm.Provider.Name())
			}
			assert.Equal(t, tt.wantTypes, types)
		})
	}
}

func TestNewChainFromConfig_WrapsWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	chain, err := NewChainFromConfig(config.SearchConfig{
		ResultLimit:     10,
		CacheTTLSeconds: 60,
		Providers:       []config.ProviderConfig{{Type: TypeInvidious, DisplayName: "Invidious"}},
	}, rdb)
	require.NoError(t, err)

	providers := chain.Providers()
	require.Len(t, providers, 1)
	_, cached := providers[0].Provider.(*CachedProvider)
	assert.True(t, cached)
	assert.Equal(t, TypeInvidious, providers[0].Provider.Name())
}
