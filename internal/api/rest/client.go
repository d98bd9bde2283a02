package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	"github.com/osa030/sonora/internal/app/session"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/domain/view"
)

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Message string
	Hint    string
}

func (e *APIError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, e.Hint)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Client calls the API. An empty token is anonymous.
type Client struct {
	baseURL    string
	token      string
	adminToken string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewAdminClient creates a client for the admin endpoints.
func NewAdminClient(baseURL, adminToken string) *Client {
	c := NewClient(baseURL, "")
	c.adminToken = adminToken
	return c
}

// Do sends a JSON request and decodes the JSON response into out when
// non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.adminToken != "" {
		req.Header.Set(AdminTokenHeader, c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorBody
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Hint: e.Hint}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// State returns the session state.
func (c *Client) State(ctx context.Context) (*session.State, error) {
	var st session.State
	if err := c.Do(ctx, http.MethodGet, "/api/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Command posts to a player command path such as "toggle" or "next" and
// returns the resulting state.
func (c *Client) Command(ctx context.Context, name string) (*session.State, error) {
	var st session.State
	if err := c.Do(ctx, http.MethodPost, "/api/player/"+name, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Play plays a known track from v.
func (c *Client) Play(ctx context.Context, trackID string, v view.View) (*session.State, error) {
	var st session.State
	if err := c.Do(ctx, http.MethodPost, "/api/player/play", playRequest{TrackID: trackID, View: v}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// PlayTrack plays a track record such as a search result.
func (c *Client) PlayTrack(ctx context.Context, t track.Track) (*session.State, error) {
	var st session.State
	if err := c.Do(ctx, http.MethodPost, "/api/player/play", playRequest{Track: &t}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Search returns search results for query.
func (c *Client) Search(ctx context.Context, query string) ([]track.Track, error) {
	var res searchResponse
	if err := c.Do(ctx, http.MethodGet, "/api/search?q="+url.QueryEscape(query), nil, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Lyrics returns the lyrics for a track.
func (c *Client) Lyrics(ctx context.Context, trackID string) (*session.LyricsResult, error) {
	var res session.LyricsResult
	if err := c.Do(ctx, http.MethodGet, "/api/lyrics/"+url.PathEscape(trackID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Library returns the library listing.
func (c *Client) Library(ctx context.Context) (*session.LibraryState, error) {
	var lib session.LibraryState
	if err := c.Do(ctx, http.MethodGet, "/api/library", nil, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Listeners lists live sessions.
func (c *Client) Listeners(ctx context.Context) ([]ListenerInfo, error) {
	var res listenersResponse
	if err := c.Do(ctx, http.MethodGet, "/admin/listeners", nil, &res); err != nil {
		return nil, err
	}
	return res.Listeners, nil
}

// Kick ends a user's session. An empty userID addresses the anonymous one.
func (c *Client) Kick(ctx context.Context, userID string) error {
	if userID == "" {
		userID = AnonymousListenerID
	}
	return c.Do(ctx, http.MethodDelete, "/admin/listeners/"+url.PathEscape(userID), nil, nil)
}

// Notification is a decoded state stream message with a raw payload.
type Notification struct {
	SequenceNo uint64          `json:"seq"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// Watch streams session notifications to fn until ctx ends, the server
// closes the stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(Notification) error) error {
	u, err := url.Parse(c.baseURL + "/ws/state")
	if err != nil {
		return errors.Wrap(err, "invalid server url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to open state stream")
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var n Notification
		if err := conn.ReadJSON(&n); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "state stream failed")
		}
		if err := fn(n); err != nil {
			return err
		}
	}
}
