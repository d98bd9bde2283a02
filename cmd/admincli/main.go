// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/api/rest"
	"github.com/osa030/sonora/internal/app/importer"
	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/app/search"
	"github.com/osa030/sonora/internal/infra/config"
	"github.com/osa030/sonora/internal/infra/logger"
	"github.com/osa030/sonora/internal/infra/spotify"
	"github.com/osa030/sonora/internal/infra/storage"
)

var (
	app     = kingpin.New("sonora-admincli", "Sonora admin client")
	verbose = app.Flag("verbose", "Enable debug logging").Short('v').Bool()

	importCmd      = app.Command("import-spotify", "Import a Spotify playlist into a user's library")
	importConfig   = importCmd.Flag("config", "Path to config file").Default("config/server.yaml").String()
	importUser     = importCmd.Flag("user", "User id owning the library").Required().String()
	importPlaylist = importCmd.Flag("create-playlist", "Also create a playlist named after the source").Bool()
	importDryRun   = importCmd.Flag("dry-run", "Resolve tracks without changing the library").Bool()
	importURL      = importCmd.Arg("playlist-url", "Spotify playlist URL or ID").Required().String()

	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	listCmd = app.Command("list-listeners", "List live sessions").Alias("list")

	kickCmd      = app.Command("kick", "End a user's session")
	kickListener = kickCmd.Arg("user-id", "User id ('-' for the anonymous session)").Required().String()
)

func main() {
	_ = godotenv.Load()
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case importCmd.FullCommand():
		err = importSpotify(ctx)
	case listCmd.FullCommand():
		err = listListeners(ctx)
	case kickCmd.FullCommand():
		err = kick(ctx)
	}
	if err != nil {
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		zlog.Fatal().Msgf("%s failed: %v", command, err)
	}
}

func importSpotify(ctx context.Context) error {
	cfg, err := config.Load(*importConfig)
	if err != nil {
		return err
	}
	if !cfg.Spotify.Enabled() {
		return errors.WithHint(errors.New("spotify credentials are not configured"),
			"set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET or the spotify section of the config")
	}

	if cfg.Storage.Backend == config.BackendMemory && !*importDryRun {
		return errors.WithHint(errors.New("the memory backend does not persist imports"),
			"set storage.backend to redis or postgres, or pass --dry-run")
	}

	backends, err := storage.Open(ctx, cfg.Storage, cfg.Search.CacheTTL() > 0)
	if err != nil {
		return err
	}
	defer backends.Close()

	chain, err := search.NewChainFromConfig(cfg.Search, backends.Redis)
	if err != nil {
		return err
	}

	source, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		return err
	}

	lib := library.NewService(*importUser, backends.Library)
	if err := lib.Load(ctx); err != nil {
		return err
	}
	defer lib.Flush()

	result, err := importer.New(source, chain, lib).Import(ctx, *importURL, importer.Options{
		CreatePlaylist: *importPlaylist,
		DryRun:         *importDryRun,
	})
	if result != nil {
		printImportResult(result)
	}
	return err
}

func printImportResult(r *importer.Result) {
	fmt.Printf("Imported: %d\n", len(r.Imported))
	for _, t := range r.Imported {
		fmt.Printf("  + [%s] %s - %s\n", t.ID, t.Title, t.Artist)
	}
	if len(r.Existing) > 0 {
		fmt.Printf("Already in library: %d\n", len(r.Existing))
	}
	if len(r.NotFound) > 0 {
		fmt.Printf("Not found: %d\n", len(r.NotFound))
		for _, item := range r.NotFound {
			fmt.Printf("  ? %s\n", item.SearchQuery())
		}
	}
	if r.PlaylistID != "" {
		fmt.Printf("Playlist: %s\n", r.PlaylistID)
	}
}

func adminClient() (*rest.Client, error) {
	if *token == "" {
		return nil, errors.New("admin token is required (use --token or ADMIN_TOKEN env)")
	}
	return rest.NewAdminClient(*server, *token), nil
}

func listListeners(ctx context.Context) error {
	client, err := adminClient()
	if err != nil {
		return err
	}
	listeners, err := client.Listeners(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Total listeners: %d\n", len(listeners))
	for _, l := range listeners {
		name := l.DisplayName
		if name == "" {
			name = "-"
		}
		fmt.Printf("  %-24s %-20s connections=%d joined=%s last_seen=%s\n",
			l.UserID, name, l.Connections, l.JoinedAt, l.LastSeenAt)
	}
	return nil
}

func kick(ctx context.Context) error {
	client, err := adminClient()
	if err != nil {
		return err
	}
	userID := *kickListener
	if userID == rest.AnonymousListenerID {
		userID = ""
	}
	if err := client.Kick(ctx, userID); err != nil {
		return err
	}
	fmt.Printf("Kicked %s\n", *kickListener)
	return nil
}
