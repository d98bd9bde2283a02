package search

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/infra/config"
	"github.com/osa030/sonora/internal/infra/invidious"
	"github.com/osa030/sonora/internal/infra/youtube"
)

// Provider types accepted in config.
const (
	TypeInvidious = "invidious"
	TypeYouTube   = "youtube"
)

// ProviderTypes lists every registered provider type.
func ProviderTypes() []string {
	return []string{TypeInvidious, TypeYouTube}
}

// InvidiousSettings configures an invidious provider.
type InvidiousSettings struct {
	Instances      []string `mapstructure:"instances"`
	UserAgent      string   `mapstructure:"user_agent" default:"SonoraMusicApp/1.0"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" default:"8" validate:"gt=0"`
}

// YouTubeSettings configures a YouTube Data API provider.
type YouTubeSettings struct {
	APIKey         string `mapstructure:"api_key" validate:"required"`
	BaseURL        string `mapstructure:"base_url" default:"https://www.googleapis.com/youtube/v3/" validate:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"10" validate:"gt=0"`
}

// NewChainFromConfig creates a provider chain from configuration. When rdb is
// non-nil and a cache TTL is configured every provider is wrapped in a
// redis-backed cache.
func NewChainFromConfig(cfg config.SearchConfig, rdb redis.UniversalClient) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("no search providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Providers {
		zlog.Debug().Msgf("search: creating provider: index=%d type=%s", i+1, pcfg.Type)

		provider, err := newProvider(pcfg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}
		if rdb != nil && cfg.CacheTTL() > 0 {
			provider = NewCachedProvider(provider, rdb, cfg.CacheTTL())
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("search: registered provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(providers, cfg.ResultLimit), nil
}

func newProvider(pcfg config.ProviderConfig) (Provider, error) {
	switch pcfg.Type {
	case TypeInvidious:
		var s InvidiousSettings
		if err := decodeSettings(pcfg.Settings, &s); err != nil {
			return nil, err
		}
		return invidious.New(invidious.Config{
			Instances: s.Instances,
			UserAgent: s.UserAgent,
			Timeout:   seconds(s.TimeoutSeconds),
		}), nil

	case TypeYouTube:
		var s YouTubeSettings
		if err := decodeSettings(pcfg.Settings, &s); err != nil {
			return nil, err
		}
		client, err := youtube.New(youtube.Config{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Timeout: seconds(s.TimeoutSeconds),
		})
		if err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, errors.Newf("unsupported provider type: %s", pcfg.Type)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
