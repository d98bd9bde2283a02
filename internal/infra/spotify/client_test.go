package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestParsePlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected spotify.ID
		wantErr  bool
	}{
		{name: "uri", input: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", expected: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "url", input: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", expected: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "url with query", input: "https://open.spotify.com/playlist/abc123?si=xyz&utm_source=copy", expected: "abc123"},
		{name: "localized url", input: "https://open.spotify.com/intl-ja/playlist/abc123/", expected: "abc123"},
		{name: "http url", input: "http://open.spotify.com/playlist/testID", expected: "testID"},
		{name: "plain id", input: "  37i9dQZF1DXcBWIGoYBM5M ", expected: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "empty", input: "", wantErr: true},
		{name: "empty uri", input: "spotify:playlist:", wantErr: true},
		{name: "other host", input: "https://example.com/playlist/abc", wantErr: true},
		{name: "album url", input: "https://open.spotify.com/album/abc", wantErr: true},
		{name: "path without scheme", input: "open.spotify.com/playlist/abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParsePlaylistID(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidPlaylist))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "429 text", err: errors.New("Error 429: too many requests"), expected: true},
		{name: "rate limit text", err: errors.New("Rate limit exceeded"), expected: true},
		{name: "503 text", err: errors.New("503 Service Unavailable"), expected: true},
		{name: "400 text", err: errors.New("400 Bad Request"), expected: false},
		{name: "api 429", err: spotify.Error{Message: "slow down", Status: 429}, expected: true},
		{name: "api 502", err: spotify.Error{Message: "bad gateway", Status: 502}, expected: true},
		{name: "api 403", err: spotify.Error{Message: "forbidden", Status: 403}, expected: false},
		{name: "wrapped api 500", err: errors.Wrap(spotify.Error{Status: 500}, "get"), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, retryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	c := &Client{attempts: 3, backoff: time.Millisecond}

	t.Run("recovers", func(t *testing.T) {
		calls := 0
		err := c.withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("503 Service Unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := c.withRetry(context.Background(), func() error {
			calls++
			return errors.New("503 Service Unavailable")
		})
		assert.ErrorContains(t, err, "gave up after 3 attempts")
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error", func(t *testing.T) {
		calls := 0
		err := c.withRetry(context.Background(), func() error {
			calls++
			return errors.New("404 not found")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := c.withRetry(ctx, func() error {
			calls++
			return errors.New("429 rate limit")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestItemFromTrack(t *testing.T) {
	full := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:       "sp1",
			Name:     "Get Lucky",
			Duration: 248000,
			Artists:  []spotify.SimpleArtist{{Name: "Daft Punk"}, {Name: "Pharrell Williams"}},
		},
		Album: spotify.SimpleAlbum{
			Images: []spotify.Image{{URL: "http://img/large"}, {URL: "http://img/small"}},
		},
	}

	item := itemFromTrack(full)
	assert.Equal(t, "sp1", item.SpotifyID)
	assert.Equal(t, "Daft Punk, Pharrell Williams", item.Artist)
	assert.Equal(t, 248*time.Second, item.Duration)
	assert.Equal(t, "http://img/large", item.AlbumArtURL)
	assert.Equal(t, "Daft Punk, Pharrell Williams Get Lucky", item.SearchQuery())
}

func trackJSON(id string) string {
	return fmt.Sprintf(`{"track":{"type":"track","id":%q,"name":"Song %s","duration_ms":180000,`+
		`"artists":[{"name":"Band"}],"album":{"images":[{"url":"http://img/%s"}]}}}`, id, id, id)
}

// newTestClient serves a playlist of the given track IDs, two per page.
func newTestClient(t *testing.T, ids []string) *Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/playlists/pl1/"):
			assert.Equal(t, "US", r.URL.Query().Get("market"))
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			var entries []string
			for i := offset; i < len(ids) && i < offset+2; i++ {
				if ids[i] == "episode" {
					entries = append(entries, `{"track":{"type":"episode","id":"ep1","name":"Talk"}}`)
					continue
				}
				entries = append(entries, trackJSON(ids[i]))
			}
			fmt.Fprintf(w, `{"items":[%s],"total":%d,"offset":%d,"limit":2}`, strings.Join(entries, ","), len(ids), offset)
		case r.URL.Path == "/playlists/pl1":
			fmt.Fprint(w, `{"id":"pl1","name":"Road Trip"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"status":404,"message":"not found"}}`)
		}
	}))
	t.Cleanup(ts.Close)

	c := newClient(spotify.New(ts.Client(), spotify.WithBaseURL(ts.URL+"/")), "US")
	c.pageSize = 2
	c.backoff = time.Millisecond
	return c
}

func TestClient_PlaylistTracks(t *testing.T) {
	c := newTestClient(t, []string{"a", "b", "episode", "c", "d"})

	items, err := c.PlaylistTracks(context.Background(), "https://open.spotify.com/playlist/pl1?si=x")
	require.NoError(t, err)

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.SpotifyID
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, "Song a", items[0].Title)
	assert.Equal(t, 3*time.Minute, items[0].Duration)
	assert.Equal(t, "http://img/a", items[0].AlbumArtURL)
}

func TestClient_PlaylistName(t *testing.T) {
	c := newTestClient(t, nil)

	name, err := c.PlaylistName(context.Background(), "spotify:playlist:pl1")
	require.NoError(t, err)
	assert.Equal(t, "Road Trip", name)

	_, err = c.PlaylistName(context.Background(), "spotify:playlist:missing")
	assert.Error(t, err)

	_, err = c.PlaylistName(context.Background(), "https://example.com/x")
	assert.True(t, errors.Is(err, ErrInvalidPlaylist))
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "id"})
	assert.Error(t, err)

	c, err := New(context.Background(), Config{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, defaultMarket, c.market)
}
