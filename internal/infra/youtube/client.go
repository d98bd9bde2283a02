// Package youtube provides a search client for the YouTube Data API.
package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/track"
)

// DefaultBaseURL is the YouTube Data API v3 root.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3/"

// Config represents YouTube client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is a YouTube Data API search client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
				Medium struct {
					URL string `json:"url"`
				} `json:"medium"`
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// New creates a new YouTube client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "youtube"
}

// Search returns video results for query. Durations are filled from a
// second videos call; when that fails the results are returned with zero
// durations.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("videoCategoryId", "10")
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("q", query)
	params.Set("key", c.apiKey)

	var body searchResponse
	if err := c.get(ctx, "search", params, &body); err != nil {
		return nil, err
	}

	out := make([]track.Track, 0, len(body.Items))
	ids := make([]string, 0, len(body.Items))
	for _, it := range body.Items {
		if it.ID.VideoID == "" {
			continue
		}
		thumbs := it.Snippet.Thumbnails
		thumb := thumbs.High.URL
		if thumb == "" {
			thumb = thumbs.Medium.URL
		}
		if thumb == "" {
			thumb = thumbs.Default.URL
		}
		out = append(out, track.Track{
			ID:          it.ID.VideoID,
			Title:       it.Snippet.Title,
			Artist:      it.Snippet.ChannelTitle,
			AlbumArtURL: thumb,
		})
		ids = append(ids, it.ID.VideoID)
	}

	if len(ids) > 0 {
		durations, err := c.fetchDurations(ctx, ids)
		if err != nil {
			zlog.Warn().Err(err).Msg("youtube: failed to fetch durations")
		} else {
			for i := range out {
				out[i].Duration = durations[out[i].ID]
			}
		}
	}
	return out, nil
}

func (c *Client) fetchDurations(ctx context.Context, ids []string) (map[string]time.Duration, error) {
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", c.apiKey)

	var body videosResponse
	if err := c.get(ctx, "videos", params, &body); err != nil {
		return nil, err
	}

	durations := make(map[string]time.Duration, len(body.Items))
	for _, item := range body.Items {
		durations[item.ID] = ParseISO8601Duration(item.ContentDetails.Duration)
	}
	return durations, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("youtube %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISO8601Duration parses PT#H#M#S durations. Anything else is 0.
func ParseISO8601Duration(s string) time.Duration {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var d time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		d += time.Duration(n) * unit
	}
	return d
}
