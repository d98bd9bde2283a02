// Package invidious provides a search client over public Invidious instances.
package invidious

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/sonora/internal/domain/track"
)

const (
	// DefaultUserAgent identifies the app to instance operators.
	DefaultUserAgent = "SonoraMusicApp/1.0"
	// DefaultTimeout bounds one request to one instance.
	DefaultTimeout = 8 * time.Second
	// MaxResults caps the number of returned tracks.
	MaxResults = 10
)

// DefaultInstances are public instances tried in random order.
var DefaultInstances = []string{
	"https://yewtu.be",
	"https://vid.puffyan.us",
	"https://invidious.projectsegfau.lt",
	"https://invidious.kavin.rocks",
	"https://iv.ggtyler.dev",
	"https://inv.n8pjl.ca",
	"https://invidious.lunar.icu",
}

// ErrAllInstancesFailed is returned when no instance produced a response.
var ErrAllInstancesFailed = errors.New("all invidious instances failed")

// Config represents Invidious client configuration.
type Config struct {
	Instances []string
	UserAgent string
	Timeout   time.Duration
	// Shuffle orders instances before each search. Nil selects lo.Shuffle.
	Shuffle func([]string) []string
}

// Client searches Invidious instances, moving to the next instance on failure.
type Client struct {
	instances  []string
	userAgent  string
	shuffle    func([]string) []string
	httpClient *http.Client
}

type videoResult struct {
	Type            string `json:"type"`
	VideoID         string `json:"videoId"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	LengthSeconds   int64  `json:"lengthSeconds"`
	VideoThumbnails []struct {
		Quality string `json:"quality"`
		URL     string `json:"url"`
	} `json:"videoThumbnails"`
}

// New creates a new Invidious client.
func New(cfg Config) *Client {
	instances := cfg.Instances
	if len(instances) == 0 {
		instances = DefaultInstances
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = lo.Shuffle[string]
	}
	return &Client{
		instances:  append([]string(nil), instances...),
		userAgent:  cfg.UserAgent,
		shuffle:    cfg.Shuffle,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "invidious"
}

// Search queries instances in shuffled order and returns the first
// successful response. An instance that answers with zero videos still
// counts as a success.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}

	order := c.shuffle(append([]string(nil), c.instances...))
	var lastErr error
	for _, instance := range order {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "search cancelled")
		}

		results, err := c.searchInstance(ctx, instance, query)
		if err != nil {
			zlog.Debug().Err(err).Msgf("invidious: instance %s failed", instance)
			lastErr = err
			continue
		}
		if len(results) > limit {
			results = results[:limit]
		}
		return results, nil
	}
	if lastErr == nil {
		return nil, ErrAllInstancesFailed
	}
	return nil, errors.Wrap(ErrAllInstancesFailed, lastErr.Error())
}

func (c *Client) searchInstance(ctx context.Context, instance, query string) ([]track.Track, error) {
	params := url.Values{}
	params.Set("q", query+" music")
	params.Set("type", "video")

	endpoint := strings.TrimRight(instance, "/") + "/api/v1/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("instance returned status %d", resp.StatusCode)
	}

	var body []videoResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	videos := lo.Filter(body, func(v videoResult, _ int) bool {
		return v.VideoID != ""
	})
	return lo.Map(videos, func(v videoResult, _ int) track.Track {
		return convert(v)
	}), nil
}

func convert(v videoResult) track.Track {
	thumb := "https://i.ytimg.com/vi/" + v.VideoID + "/maxresdefault.jpg"
	if len(v.VideoThumbnails) > 0 && v.VideoThumbnails[0].URL != "" {
		thumb = v.VideoThumbnails[0].URL
	}
	return track.Track{
		ID:          v.VideoID,
		Title:       v.Title,
		Artist:      v.Author,
		Duration:    time.Duration(v.LengthSeconds) * time.Second,
		AlbumArtURL: thumb,
	}
}
