// Package main provides the user CLI for driving a Sonora session from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/sonora/internal/api/rest"
	"github.com/osa030/sonora/internal/app/session"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/domain/view"
)

var (
	app       = kingpin.New("sonora-usercli", "User CLI for Sonora")
	serverURL = app.Flag("server", "Server URL").Default("http://localhost:8080").String()
	token     = app.Flag("token", "Session token (empty for the anonymous session)").Envar("SONORA_TOKEN").String()

	stateCmd = app.Command("state", "Show the session state")

	playCmd      = app.Command("play", "Play a library track")
	playTrackID  = playCmd.Arg("track-id", "Track id").Required().String()
	playPlaylist = playCmd.Flag("playlist", "Play from this playlist instead of all songs").String()
	playLiked    = playCmd.Flag("liked", "Play from liked tracks").Bool()

	toggleCmd  = app.Command("toggle", "Toggle play/pause")
	nextCmd    = app.Command("next", "Skip to the next track")
	prevCmd    = app.Command("prev", "Go to the previous track")
	muteCmd    = app.Command("mute", "Toggle mute")
	shuffleCmd = app.Command("shuffle", "Toggle shuffle")
	repeatCmd  = app.Command("repeat", "Cycle the repeat mode")

	seekCmd    = app.Command("seek", "Seek within the current track")
	seekOffset = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()

	queueCmd       = app.Command("queue", "Queue operations")
	queueAddCmd    = queueCmd.Command("add", "Append a search result to the queue")
	queueAddQuery  = queueAddCmd.Arg("query", "Search query").Required().String()
	queueNextCmd   = queueCmd.Command("next", "Play a search result after the current track")
	queueNextQuery = queueNextCmd.Arg("query", "Search query").Required().String()
	queueRemoveCmd = queueCmd.Command("remove", "Remove a track from the queue")
	queueRemoveID  = queueRemoveCmd.Arg("track-id", "Track id").Required().String()
	queueClearCmd  = queueCmd.Command("clear", "Clear the queue")

	likeCmd     = app.Command("like", "Toggle the liked flag of a library track")
	likeTrackID = likeCmd.Arg("track-id", "Track id").Required().String()

	libraryCmd = app.Command("library", "List the library")

	searchCmd   = app.Command("search", "Search for tracks")
	searchQuery = searchCmd.Arg("query", "Search query").Required().String()

	lyricsCmd     = app.Command("lyrics", "Show the lyrics of a track")
	lyricsTrackID = lyricsCmd.Arg("track-id", "Track id").Required().String()

	themeCmd  = app.Command("theme", "Set the UI theme")
	themeName = themeCmd.Arg("theme", "Theme").Required().Enum(string(session.ThemeLight), string(session.ThemeDark))

	watchCmd = app.Command("watch", "Stream session notifications")
)

func main() {
	_ = godotenv.Load()
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := rest.NewClient(*serverURL, *token)
	if err := run(ctx, client, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *rest.Client, command string) error {
	switch command {
	case stateCmd.FullCommand():
		return printState(client.State(ctx))
	case playCmd.FullCommand():
		v := view.AllSongs
		switch {
		case *playPlaylist != "":
			v = view.View{Kind: view.KindPlaylist, PlaylistID: *playPlaylist}
		case *playLiked:
			v = view.View{Kind: view.KindLibrary}
		}
		return printState(client.Play(ctx, *playTrackID, v))
	case toggleCmd.FullCommand():
		return printState(client.Command(ctx, "toggle"))
	case nextCmd.FullCommand():
		return printState(client.Command(ctx, "next"))
	case prevCmd.FullCommand():
		return printState(client.Command(ctx, "previous"))
	case muteCmd.FullCommand():
		return printState(client.Command(ctx, "mute"))
	case shuffleCmd.FullCommand():
		return printState(client.Command(ctx, "shuffle"))
	case repeatCmd.FullCommand():
		return printState(client.Command(ctx, "repeat"))
	case seekCmd.FullCommand():
		return doState(ctx, client, http.MethodPost, "/api/player/seek", map[string]any{"positionMs": seekOffset.Milliseconds()})
	case volumeCmd.FullCommand():
		return doState(ctx, client, http.MethodPut, "/api/player/volume", map[string]any{"volume": *volumeLevel})
	case queueAddCmd.FullCommand():
		return queueFirstResult(ctx, client, "/api/queue/", *queueAddQuery)
	case queueNextCmd.FullCommand():
		return queueFirstResult(ctx, client, "/api/queue/next", *queueNextQuery)
	case queueRemoveCmd.FullCommand():
		return doState(ctx, client, http.MethodDelete, "/api/queue/"+url.PathEscape(*queueRemoveID), nil)
	case queueClearCmd.FullCommand():
		return doState(ctx, client, http.MethodDelete, "/api/queue/", nil)
	case likeCmd.FullCommand():
		var res struct {
			TrackID string `json:"trackId"`
			Liked   bool   `json:"liked"`
		}
		if err := client.Do(ctx, http.MethodPost, "/api/library/tracks/"+url.PathEscape(*likeTrackID)+"/like", nil, &res); err != nil {
			return err
		}
		fmt.Printf("%s liked: %v\n", res.TrackID, res.Liked)
	case libraryCmd.FullCommand():
		lib, err := client.Library(ctx)
		if err != nil {
			return err
		}
		printLibrary(lib)
	case searchCmd.FullCommand():
		results, err := client.Search(ctx, *searchQuery)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results")
		}
		for i, t := range results {
			fmt.Printf("%2d. %s\n", i+1, formatTrack(t))
		}
	case lyricsCmd.FullCommand():
		res, err := client.Lyrics(ctx, *lyricsTrackID)
		if err != nil {
			return err
		}
		if !res.Found {
			fmt.Println("No lyrics found")
			return nil
		}
		fmt.Println(res.Text)
	case themeCmd.FullCommand():
		return doState(ctx, client, http.MethodPut, "/api/theme", map[string]any{"theme": *themeName})
	case watchCmd.FullCommand():
		fmt.Println("Watching session notifications. Press Ctrl+C to exit.")
		return client.Watch(ctx, printNotification)
	}
	return nil
}

func doState(ctx context.Context, client *rest.Client, method, path string, body any) error {
	var st session.State
	if err := client.Do(ctx, method, path, body, &st); err != nil {
		return err
	}
	return printState(&st, nil)
}

// queueFirstResult searches for query and queues the best match.
func queueFirstResult(ctx context.Context, client *rest.Client, path, query string) error {
	results, err := client.Search(ctx, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no results for %q", query)
	}
	fmt.Printf("Queueing %s\n", formatTrack(results[0]))
	return doState(ctx, client, http.MethodPost, path, map[string]any{"track": results[0]})
}

func printState(st *session.State, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("State:    %s\n", st.State)
	if st.CurrentTrack != nil {
		fmt.Printf("Track:    %s\n", formatTrack(*st.CurrentTrack))
		fmt.Printf("Progress: %s / %s\n",
			formatDuration(st.Progress.Current), formatDuration(st.Progress.Duration))
	} else {
		fmt.Println("Track:    -")
	}
	fmt.Printf("Modes:    shuffle=%v repeat=%s volume=%.2f muted=%v\n",
		st.Modes.Shuffle, st.Modes.Repeat, st.Modes.Volume, st.Modes.Muted)
	fmt.Printf("View:     %s %s\n", st.View.Kind, st.View.PlaylistID)
	fmt.Printf("Theme:    %s\n", st.Theme)
	if len(st.Queue) > 0 {
		fmt.Println("Queue:")
		for i, t := range st.Queue {
			fmt.Printf("  %2d. %s\n", i+1, formatTrack(t))
		}
	}
	return nil
}

func printLibrary(lib *session.LibraryState) {
	fmt.Printf("Tracks (%d):\n", len(lib.Tracks))
	for _, t := range lib.Tracks {
		fmt.Printf("  %s\n", formatTrack(t))
	}
	fmt.Printf("Liked (%d):\n", len(lib.Liked))
	for _, t := range lib.Liked {
		fmt.Printf("  %s\n", formatTrack(t))
	}
	fmt.Printf("Playlists (%d):\n", len(lib.Playlists))
	for _, p := range lib.Playlists {
		total := time.Duration(p.TotalDuration()) * time.Second
		fmt.Printf("  [%s] %s (%d tracks, %s)\n", p.ID, p.Name, len(p.Tracks), formatDuration(total))
	}
}

func printNotification(n rest.Notification) error {
	fmt.Printf("\n[Sequence: %d] ", n.SequenceNo)
	switch n.Type {
	case session.NotificationInitial:
		fmt.Println("=== INITIAL STATE ===")
		var initial rest.InitialState
		if err := json.Unmarshal(n.Payload, &initial); err != nil {
			return err
		}
		if err := printState(&initial.State, nil); err != nil {
			return err
		}
		printLibrary(&initial.Library)
		return nil
	case session.NotificationState:
		fmt.Println("=== STATE CHANGED ===")
	case session.NotificationProgress:
		fmt.Println("=== PROGRESS ===")
	case session.NotificationLibrary:
		fmt.Println("=== LIBRARY CHANGED ===")
	default:
		fmt.Printf("=== UNKNOWN EVENT (%s) ===\n", n.Type)
	}
	fmt.Println(string(n.Payload))
	return nil
}

func formatTrack(t track.Track) string {
	s := fmt.Sprintf("[%s] %s - %s", t.ID, t.Title, t.Artist)
	if t.Duration > 0 {
		s += " (" + formatDuration(t.Duration) + ")"
	}
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
