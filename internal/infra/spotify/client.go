// Package spotify reads playlists from the Spotify Web API for import.
package spotify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrInvalidPlaylist is returned for input that does not name a playlist.
var ErrInvalidPlaylist = errors.New("invalid playlist URL")

const (
	defaultMarket   = "JP"
	defaultPageSize = 100
	defaultAttempts = 3
	defaultBackoff  = time.Second
)

// Item is a playlist entry as imported into a video library.
type Item struct {
	SpotifyID   string
	Title       string
	Artist      string
	Duration    time.Duration
	AlbumArtURL string
}

// SearchQuery returns the text used to find a matching video.
func (i Item) SearchQuery() string {
	return strings.TrimSpace(i.Artist + " " + i.Title)
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string // optional; client credentials are used without it
	Market       string
}

// Client reads playlists.
type Client struct {
	api      *spotify.Client
	market   string
	pageSize int
	attempts int
	backoff  time.Duration
}

// New creates a client. Public playlists only need client credentials; a
// refresh token grants access to the user's private ones.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.WithHint(errors.New("spotify credentials are required"),
			"set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
	}

	var httpClient *http.Client
	if cfg.RefreshToken != "" {
		auth := spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
		)
		httpClient = auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	} else {
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		httpClient = creds.Client(ctx)
	}
	return newClient(spotify.New(httpClient), cfg.Market), nil
}

func newClient(api *spotify.Client, market string) *Client {
	if market == "" {
		market = defaultMarket
	}
	return &Client{
		api:      api,
		market:   market,
		pageSize: defaultPageSize,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// PlaylistName returns the playlist's display name.
func (c *Client) PlaylistName(ctx context.Context, playlistURL string) (string, error) {
	id, err := ParsePlaylistID(playlistURL)
	if err != nil {
		return "", err
	}

	var name string
	err = c.withRetry(ctx, func() error {
		p, err := c.api.GetPlaylist(ctx, id, spotify.Fields("name"))
		if err != nil {
			return err
		}
		name = p.Name
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get playlist %s", id)
	}
	return name, nil
}

// PlaylistTracks returns every track of a playlist, following pagination.
// Episodes and local files without an ID are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistURL string) ([]Item, error) {
	id, err := ParsePlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	var items []Item
	for offset := 0; ; offset += c.pageSize {
		var page *spotify.PlaylistItemPage
		err := c.withRetry(ctx, func() error {
			p, err := c.api.GetPlaylistItems(ctx, id,
				spotify.Limit(c.pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			page = p
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get playlist items: offset=%d", offset)
		}

		for _, entry := range page.Items {
			if t := entry.Track.Track; t != nil && t.ID != "" {
				items = append(items, itemFromTrack(t))
			}
		}
		if len(page.Items) < c.pageSize {
			return items, nil
		}
	}
}

func itemFromTrack(t *spotify.FullTrack) Item {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	item := Item{
		SpotifyID: string(t.ID),
		Title:     t.Name,
		Artist:    strings.Join(names, ", "),
		Duration:  time.Duration(t.Duration) * time.Millisecond,
	}
	// Images are ordered largest first.
	if len(t.Album.Images) > 0 {
		item.AlbumArtURL = t.Album.Images[0].URL
	}
	return item
}

// withRetry runs fn up to c.attempts times, doubling the wait after each
// retryable failure.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	wait := c.backoff
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(wait):
		}
		wait *= 2
	}
	return errors.Wrapf(err, "gave up after %d attempts", c.attempts)
}

// retryable reports whether err is a rate limit or server failure.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") {
		return true
	}
	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// ParsePlaylistID accepts a playlist ID, a spotify:playlist: URI or an
// open.spotify.com URL (including localized /intl-xx/ paths).
func ParsePlaylistID(input string) (spotify.ID, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidPlaylist
	}
	if id, ok := strings.CutPrefix(input, "spotify:playlist:"); ok {
		if id == "" {
			return "", ErrInvalidPlaylist
		}
		return spotify.ID(id), nil
	}
	if !strings.Contains(input, "://") {
		if strings.ContainsAny(input, "/:?") {
			return "", errors.Wrapf(ErrInvalidPlaylist, "%q", input)
		}
		return spotify.ID(input), nil
	}

	u, err := url.Parse(input)
	if err != nil || u.Host != "open.spotify.com" {
		return "", errors.Wrapf(ErrInvalidPlaylist, "%q", input)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "playlist" && segments[i+1] != "" {
			return spotify.ID(segments[i+1]), nil
		}
	}
	return "", errors.Wrapf(ErrInvalidPlaylist, "%q", input)
}
