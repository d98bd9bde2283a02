// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends for the library store.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Playback PlaybackConfig `yaml:"playback"`
	Storage  StorageConfig  `yaml:"storage"`
	Search   SearchConfig   `yaml:"search"`
	Lyrics   LyricsConfig   `yaml:"lyrics"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr                 string      `yaml:"addr" default:":8080"`
	AllowedOrigins       []string    `yaml:"allowed_origins"`
	SessionIdleMinutes   int         `yaml:"session_idle_minutes" default:"120" validate:"gt=0"`
	SweepIntervalSeconds int         `yaml:"sweep_interval_seconds" default:"60" validate:"gt=0"`
	Hooks                HooksConfig `yaml:"hooks"`
}

// SessionIdle returns how long a session without connections is kept.
func (s ServerConfig) SessionIdle() time.Duration {
	return time.Duration(s.SessionIdleMinutes) * time.Minute
}

// SweepInterval returns the idle session sweep period.
func (s ServerConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AuthConfig represents session token configuration.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" validate:"required,min=16"`
	AdminToken    string `yaml:"admin_token"` // Empty disables the admin endpoints
	TokenTTLHours int    `yaml:"token_ttl_hours" default:"720" validate:"gt=0"`
}

// TokenTTL returns the token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	SampleIntervalMs   int `yaml:"sample_interval_ms" default:"500" validate:"gte=50,lte=5000"`
	NearEndMs          int `yaml:"near_end_ms" default:"500" validate:"gte=0,lte=10000"`
	RestartThresholdMs int `yaml:"restart_threshold_ms" default:"3000" validate:"gte=0,lte=60000"`
}

// SampleInterval returns the progress sampling period.
func (p PlaybackConfig) SampleInterval() time.Duration {
	return time.Duration(p.SampleIntervalMs) * time.Millisecond
}

// NearEnd returns the near-end window.
func (p PlaybackConfig) NearEnd() time.Duration {
	return time.Duration(p.NearEndMs) * time.Millisecond
}

// RestartThreshold returns the position past which "previous" restarts the track.
func (p PlaybackConfig) RestartThreshold() time.Duration {
	return time.Duration(p.RestartThresholdMs) * time.Millisecond
}

// StorageConfig represents persistence configuration.
type StorageConfig struct {
	Backend   string         `yaml:"backend" default:"memory" validate:"oneof=memory redis postgres"`
	Redis     RedisConfig    `yaml:"redis"`
	Postgres  PostgresConfig `yaml:"postgres"`
	LocalPath string         `yaml:"local_path" default:"data/sonora.db" validate:"required"`
}

// RedisConfig represents redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// PostgresConfig represents postgres connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// SearchConfig represents search configuration.
type SearchConfig struct {
	ResultLimit     int              `yaml:"result_limit" default:"10" validate:"gte=1,lte=25"`
	CacheTTLSeconds int              `yaml:"cache_ttl_seconds" default:"600" validate:"gte=0"`
	Providers       []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
}

// CacheTTL returns the search cache lifetime. Zero disables caching.
func (s SearchConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// ProviderConfig represents a single search provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// LyricsConfig represents lyrics lookup configuration.
type LyricsConfig struct {
	BaseURL        string `yaml:"base_url" default:"https://lrclib.net/api/" validate:"url"`
	UserAgent      string `yaml:"user_agent" default:"SonoraMusicApp/1.0"`
	TimeoutSeconds int    `yaml:"timeout_seconds" default:"10" validate:"gt=0"`
}

// Timeout returns the lyrics request timeout.
func (l LyricsConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// SpotifyConfig represents Spotify API configuration. Only playlist import
// uses it, so every field is optional.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SONORA_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("SONORA_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv("SONORA_POSTGRES_DSN"); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		for i := range c.Search.Providers {
			if c.Search.Providers[i].Type == "youtube" {
				if c.Search.Providers[i].Settings == nil {
					c.Search.Providers[i].Settings = map[string]any{}
				}
				c.Search.Providers[i].Settings["api_key"] = v
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return nil
}

// validateStorage checks that the selected backend has its connection settings.
func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for the postgres backend")
		}
	}
	return nil
}
