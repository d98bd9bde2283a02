package invidious

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(in []string) []string { return in }

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "lofi music", r.URL.Query().Get("q"))
		assert.Equal(t, "video", r.URL.Query().Get("type"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `[
			{"type":"video","videoId":"v1","title":"One","author":"A","lengthSeconds":200,
			 "videoThumbnails":[{"quality":"maxres","url":"http://img/v1"}]},
			{"type":"channel","title":"not a video"},
			{"type":"video","videoId":"v2","title":"Two","author":"B","lengthSeconds":0}
		]`)
	}))
	defer server.Close()

	client := New(Config{Instances: []string{server.URL}, Shuffle: identity})
	results, err := client.Search(context.Background(), "lofi", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "v1", results[0].ID)
	assert.Equal(t, "A", results[0].Artist)
	assert.Equal(t, 200*time.Second, results[0].Duration)
	assert.Equal(t, "http://img/v1", results[0].AlbumArtURL)
	assert.Equal(t, "https://i.ytimg.com/vi/v2/maxresdefault.jpg", results[1].AlbumArtURL)
}

func TestSearch_LimitsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]string, 15)
		for i := range items {
			items[i] = fmt.Sprintf(`{"videoId":"v%d","title":"t"}`, i)
		}
		fmt.Fprint(w, "["+strings.Join(items, ",")+"]")
	}))
	defer server.Close()

	client := New(Config{Instances: []string{server.URL}, Shuffle: identity})

	results, err := client.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, results, MaxResults)

	results, err = client.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_FallsThroughFailingInstances(t *testing.T) {
	var badHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	}))
	defer garbage.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"videoId":"ok","title":"ok"}]`)
	}))
	defer good.Close()

	client := New(Config{Instances: []string{bad.URL, garbage.URL, good.URL}, Shuffle: identity})
	results, err := client.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].ID)
	assert.Equal(t, int32(1), badHits.Load())
}

func TestSearch_AllInstancesFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	client := New(Config{Instances: []string{bad.URL, bad.URL}, Shuffle: identity})
	_, err := client.Search(context.Background(), "q", 10)
	assert.True(t, errors.Is(err, ErrAllInstancesFailed))
}

func TestSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(Config{Instances: []string{"http://127.0.0.1:1"}, Shuffle: identity})
	_, err := client.Search(ctx, "q", 10)
	assert.Error(t, err)
}
