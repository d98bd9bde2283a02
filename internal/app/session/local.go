package session

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/track"
)

// Local state keys.
const (
	KeyHistory      = "sonora-playback-history"
	KeyTheme        = "sonora-theme"
	KeyArtMigration = "sonora-thumbnail-migration-maxres-v1-completed"
)

// LocalStore persists small per-user key/value state.
type LocalStore interface {
	Get(ctx context.Context, userID, key string) (string, bool, error)
	Set(ctx context.Context, userID, key, value string) error
	Delete(ctx context.Context, userID, key string) error
}

// Theme is the UI color theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DefaultTheme is used until the user picks one.
const DefaultTheme = ThemeDark

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	default:
		return "", errors.Newf("unknown theme: %q", s)
	}
}

// historyStore keeps the history log as a JSON array under KeyHistory.
type historyStore struct {
	local  LocalStore
	userID string
}

// LoadHistory reads the persisted history. A corrupt value is discarded.
func (h historyStore) LoadHistory(ctx context.Context) ([]track.Track, error) {
	raw, ok, err := h.local.Get(ctx, h.userID, KeyHistory)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history")
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var entries []track.Track
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		zlog.Warn().Err(err).Msgf("session: discarding corrupt history: user=%s", h.userID)
		if err := h.local.Delete(ctx, h.userID, KeyHistory); err != nil {
			zlog.Warn().Err(err).Msg("session: failed to delete corrupt history")
		}
		return nil, nil
	}
	return entries, nil
}

// SaveHistory writes the history. An empty history removes the key.
func (h historyStore) SaveHistory(ctx context.Context, entries []track.Track) error {
	if len(entries) == 0 {
		return h.local.Delete(ctx, h.userID, KeyHistory)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode history")
	}
	return h.local.Set(ctx, h.userID, KeyHistory, string(data))
}
