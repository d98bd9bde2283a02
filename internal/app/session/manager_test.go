package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/app/lyrics"
	"github.com/osa030/sonora/internal/app/notification"
	"github.com/osa030/sonora/internal/app/playback"
	"github.com/osa030/sonora/internal/app/player"
	"github.com/osa030/sonora/internal/app/player/playertest"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/domain/view"
)

const testUser = "user-1"

type memLocal struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemLocal() *memLocal {
	return &memLocal{data: make(map[string]string)}
}

func (m *memLocal) Get(_ context.Context, userID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[userID+"/"+key]
	return v, ok, nil
}

func (m *memLocal) Set(_ context.Context, userID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID+"/"+key] = value
	return nil
}

func (m *memLocal) Delete(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID+"/"+key)
	return nil
}

func (m *memLocal) get(key string) (string, bool) {
	v, ok, _ := m.Get(context.Background(), testUser, key)
	return v, ok
}

type stubSearch struct {
	results []track.Track
	err     error
}

func (s stubSearch) Search(context.Context, string) ([]track.Track, error) {
	return s.results, s.err
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (f *countingFetcher) Lyrics(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, nil
}

type fixture struct {
	manager *Manager
	adapter *playertest.Fake
	store   *library.MemoryStore
	local   *memLocal
	fetcher *countingFetcher
}

func libraryTracks(ids ...string) []track.Track {
	out := make([]track.Track, len(ids))
	for i, id := range ids {
		out[i] = track.Track{ID: id, Title: "title " + id, Artist: "artist", Duration: time.Minute}
	}
	return out
}

func newFixture(t *testing.T, userID string, seed []track.Track, search Searcher) *fixture {
	t.Helper()

	store := library.NewMemoryStore()
	for _, tr := range seed {
		require.NoError(t, store.SaveTrack(context.Background(), userID, tr))
	}
	f := &fixture{
		adapter: playertest.New(),
		store:   store,
		local:   newMemLocal(),
		fetcher: &countingFetcher{text: "[00:01.00]hello\n[00:02.50]world"},
	}
	f.manager = NewManager(userID, f.adapter, Deps{
		Playback: playback.Config{SampleInterval: 5 * time.Millisecond},
		Library:  store,
		Local:    f.local,
		Search:   search,
		Lyrics:   lyrics.NewService(f.fetcher, nil),
	})
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Start(context.Background()))
}

func (f *fixture) commandsContain(cmd string) func() bool {
	return func() bool {
		for _, c := range f.adapter.Commands() {
			if c == cmd {
				return true
			}
		}
		return false
	}
}

func TestManager_StartLoadsLocalState(t *testing.T) {
	f := newFixture(t, testUser, libraryTracks("a"), nil)
	history, err := json.Marshal(libraryTracks("h1", "h2"))
	require.NoError(t, err)
	require.NoError(t, f.local.Set(context.Background(), testUser, KeyHistory, string(history)))
	require.NoError(t, f.local.Set(context.Background(), testUser, KeyTheme, "light"))

	f.start(t)

	state := f.manager.State()
	assert.Equal(t, []string{"h1", "h2"}, track.IDs(state.History))
	assert.Equal(t, ThemeLight, state.Theme)
	assert.True(t, state.Authenticated)
	assert.Equal(t, view.AllSongs, state.View)

	flag, ok := f.local.get(KeyArtMigration)
	assert.True(t, ok)
	assert.Equal(t, "true", flag)
}

func TestManager_CorruptHistoryIsDiscarded(t *testing.T) {
	f := newFixture(t, testUser, nil, nil)
	require.NoError(t, f.local.Set(context.Background(), testUser, KeyHistory, "{not json"))

	f.start(t)

	assert.Empty(t, f.manager.State().History)
	_, ok := f.local.get(KeyHistory)
	assert.False(t, ok)
}

func TestManager_PlayFromView(t *testing.T) {
	f := newFixture(t, testUser, libraryTracks("a", "b", "c"), nil)
	f.start(t)

	require.NoError(t, f.manager.Play("b", view.AllSongs))
	state := f.manager.State()
	require.NotNil(t, state.CurrentTrack)
	assert.Equal(t, "b", state.CurrentTrack.ID)
	assert.Equal(t, []string{"b", "c", "a"}, track.IDs(state.Queue))

	f.adapter.Emit(player.Event{Type: player.EventReady})
	require.Eventually(t, f.commandsContain("load:b"), time.Second, 5*time.Millisecond)

	err := f.manager.Play("missing", view.AllSongs)
	assert.True(t, errors.Is(err, library.ErrTrackNotFound))

	err = f.manager.Play("a", view.View{Kind: view.KindPlaylist})
	assert.Error(t, err)
}

func TestManager_PlaySearchResultFromLikedView(t *testing.T) {
	f := newFixture(t, testUser, libraryTracks("a", "b"), nil)
	f.start(t)

	_, err := f.manager.ToggleLike("a")
	require.NoError(t, err)

	require.NoError(t, f.manager.PlayTrack(track.Track{ID: "x", Title: "search hit"}, view.View{Kind: view.KindLibrary}))
	state := f.manager.State()
	assert.Equal(t, []string{"x", "a"}, track.IDs(state.Queue))
	assert.Equal(t, view.KindLibrary, state.View.Kind)
}

func TestManager_DurationLearnedUpdatesLibrary(t *testing.T) {
	seed := []track.Track{{ID: "a", Title: "A", Artist: "x"}}
	f := newFixture(t, testUser, seed, nil)
	f.start(t)

	f.adapter.Emit(player.Event{Type: player.EventReady})
	require.NoError(t, f.manager.Play("a", view.AllSongs))
	require.Eventually(t, f.commandsContain("load:a"), time.Second, 5*time.Millisecond)

	f.adapter.SetTime(time.Second, 3*time.Minute)
	f.adapter.SetState(player.StatePlaying)
	f.adapter.Emit(player.Event{Type: player.EventStateChanged, State: player.StatePlaying})

	require.Eventually(t, func() bool {
		return f.manager.LibraryState().Tracks[0].Duration == 3*time.Minute
	}, time.Second, 5*time.Millisecond)

	f.manager.library.Flush()
	stored, err := f.store.ListTracks(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, stored[0].Duration)
}

func TestManager_DeleteFromLibraryCascades(t *testing.T) {
	f := newFixture(t, testUser, libraryTracks("a", "b", "c"), nil)
	f.start(t)

	p, err := f.manager.CreatePlaylist("mix")
	require.NoError(t, err)
	require.NoError(t, f.manager.AddToPlaylist(p.ID, "b"))
	_, err = f.manager.ToggleLike("b")
	require.NoError(t, err)

	require.NoError(t, f.manager.Play("a", view.AllSongs))
	require.NoError(t, f.manager.Next())
	require.Equal(t, "b", f.manager.State().CurrentTrack.ID)

	require.NoError(t, f.manager.DeleteFromLibrary("b"))

	state := f.manager.State()
	assert.Equal(t, "c", state.CurrentTrack.ID)
	assert.Equal(t, []string{"a", "c"}, track.IDs(state.Queue))
	assert.Equal(t, []string{"a"}, track.IDs(state.History))

	lib := f.manager.LibraryState()
	assert.Equal(t, []string{"a", "c"}, track.IDs(lib.Tracks))
	assert.Empty(t, lib.Liked)
	assert.Empty(t, lib.Playlists[0].Tracks)
}

func TestManager_AnonymousCannotMutateLibrary(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	f.start(t)

	_, err := f.manager.AddToLibrary(track.Track{ID: "a", Title: "A"})
	assert.True(t, errors.Is(err, library.ErrNotAuthenticated))
	_, err = f.manager.CreatePlaylist("mix")
	assert.True(t, errors.Is(err, library.ErrNotAuthenticated))

	// Playback still works for search results.
	require.NoError(t, f.manager.PlayTrack(track.Track{ID: "a", Title: "A"}, view.AllSongs))
	assert.Equal(t, "a", f.manager.State().CurrentTrack.ID)
}

func TestManager_Search(t *testing.T) {
	hit := []track.Track{{ID: "v1", Title: "One"}}

	tests := []struct {
		name     string
		search   Searcher
		expected []string
	}{
		{"results", stubSearch{results: hit}, []string{"v1"}},
		{"failure is empty", stubSearch{err: errors.New("down")}, []string{}},
		{"nil results", stubSearch{}, []string{}},
		{"no searcher", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testUser, nil, tt.search)
			got := f.manager.Search(context.Background(), "q")
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, track.IDs(got))
		})
	}
}

func TestManager_LyricsFetchedOnce(t *testing.T) {
	f := newFixture(t, testUser, libraryTracks("a"), nil)
	f.start(t)

	first, err := f.manager.Lyrics(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, first.Found)
	require.Len(t, first.Lines, 2)
	assert.Equal(t, int64(2500), first.Lines[1].TimeMs)

	second, err := f.manager.Lyrics(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, f.fetcher.calls)

	stored, ok := f.manager.library.Track("a")
	require.True(t, ok)
	assert.True(t, stored.LyricsFetched())

	_, err = f.manager.Lyrics(context.Background(), "missing")
	assert.True(t, errors.Is(err, library.ErrTrackNotFound))
}

func TestManager_Theme(t *testing.T) {
	f := newFixture(t, testUser, nil, nil)
	f.start(t)

	require.NoError(t, f.manager.SetTheme(ThemeLight))
	assert.Equal(t, ThemeLight, f.manager.Theme())
	stored, ok := f.local.get(KeyTheme)
	assert.True(t, ok)
	assert.Equal(t, "light", stored)

	assert.Error(t, f.manager.SetTheme("sepia"))
	assert.Equal(t, ThemeLight, f.manager.Theme())
}

func TestManager_HistoryPersisted(t *testing.T) {
	f := newFixture(t, testUser, libraryTracks("a", "b"), nil)
	f.start(t)

	require.NoError(t, f.manager.Play("a", view.AllSongs))
	require.NoError(t, f.manager.Next())

	require.Eventually(t, func() bool {
		raw, ok := f.local.get(KeyHistory)
		if !ok {
			return false
		}
		var entries []track.Track
		return json.Unmarshal([]byte(raw), &entries) == nil && len(entries) == 1 && entries[0].ID == "a"
	}, time.Second, 5*time.Millisecond)
}

type chanStream chan *notification.Notification

func (c chanStream) Send(n *notification.Notification) error {
	c <- n
	return nil
}

func TestManager_PublishesState(t *testing.T) {
	f := newFixture(t, testUser, libraryTracks("a", "b"), nil)
	f.start(t)

	stream := make(chanStream, 64)
	f.manager.Notifications().Subscribe(stream)

	require.NoError(t, f.manager.Play("a", view.AllSongs))

	select {
	case n := <-stream:
		assert.Equal(t, NotificationState, n.Type)
		assert.Positive(t, n.SequenceNo)
		data, err := json.Marshal(n.Payload)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"currentTrack"`)
	case <-time.After(time.Second):
		t.Fatal("no notification published")
	}
}

func TestManager_CommandsWithoutTrackAreNoOps(t *testing.T) {
	f := newFixture(t, testUser, nil, nil)
	f.start(t)

	assert.NoError(t, f.manager.TogglePlay())
	assert.NoError(t, f.manager.Next())
	assert.NoError(t, f.manager.Previous())
	assert.NoError(t, f.manager.Seek(time.Second))
	assert.Empty(t, f.adapter.Commands())
}
