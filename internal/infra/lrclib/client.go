// Package lrclib provides a client for the LRCLIB lyrics API.
package lrclib

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Defaults
const (
	DefaultBaseURL   = "https://lrclib.net/api/"
	DefaultUserAgent = "SonoraMusicApp/1.0"
	DefaultTimeout   = 10 * time.Second
)

// ErrNotFound is returned when no lyrics exist for a track.
var ErrNotFound = errors.New("no lyrics found")

// Config represents LRCLIB client configuration.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client is an LRCLIB API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Result is one entry of a search response.
type Result struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// New creates a new LRCLIB client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Search looks up lyrics entries by track and artist name.
// Reference: https://lrclib.net/docs
func (c *Client) Search(ctx context.Context, trackName, artistName string) ([]Result, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("track_name", trackName)
	params.Set("artist_name", artistName)

	reqURL := c.baseURL + "search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("lrclib API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var results []Result
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	return results, nil
}

// Lyrics returns the best lyrics text for a track: the first entry with
// synced lyrics, otherwise the first entry. Synced text is preferred over
// plain text. ErrNotFound is returned when nothing usable exists.
func (c *Client) Lyrics(ctx context.Context, trackName, artistName string) (string, error) {
	results, err := c.Search(ctx, trackName, artistName)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", ErrNotFound
	}

	best := results[0]
	for _, r := range results {
		if r.SyncedLyrics != "" {
			best = r
			break
		}
	}

	lyrics := best.SyncedLyrics
	if lyrics == "" {
		lyrics = best.PlainLyrics
	}
	if lyrics == "" {
		return "", ErrNotFound
	}

	zlog.Debug().Msgf("lrclib: lyrics found: %s - %s (synced: %t)", artistName, trackName, best.SyncedLyrics != "")
	return lyrics, nil
}
