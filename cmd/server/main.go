// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/sonora/internal/api/rest"
	"github.com/osa030/sonora/internal/app/lyrics"
	"github.com/osa030/sonora/internal/app/playback"
	"github.com/osa030/sonora/internal/app/search"
	"github.com/osa030/sonora/internal/app/session"
	"github.com/osa030/sonora/internal/app/session/registry"
	"github.com/osa030/sonora/internal/infra/config"
	"github.com/osa030/sonora/internal/infra/logger"
	"github.com/osa030/sonora/internal/infra/lrclib"
	"github.com/osa030/sonora/internal/infra/storage"
	"github.com/osa030/sonora/internal/infra/ytbridge"
)

var (
	app        = kingpin.New("sonora-server", "Sonora music player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logFormat  = app.Flag("log-format", "Log format (default: console for stdout, json for files)").Enum("console", "json")

	listProvidersCmd = app.Command("list-providers", "List available search provider types and exit")
)

func init() {
	app.Command("serve", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listProvidersCmd.FullCommand() {
		printProviders()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info", Format: *logFormat}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v (%s)", err, errors.FlattenHints(err))
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := storage.Open(ctx, cfg.Storage, cfg.Search.CacheTTL() > 0)
	if err != nil {
		return errors.Wrap(err, "failed to open storage")
	}
	defer backends.Close()

	chain, err := search.NewChainFromConfig(cfg.Search, backends.Redis)
	if err != nil {
		return errors.Wrap(err, "failed to create search providers")
	}

	lyricsClient := lrclib.New(lrclib.Config{
		BaseURL:   cfg.Lyrics.BaseURL,
		UserAgent: cfg.Lyrics.UserAgent,
		Timeout:   cfg.Lyrics.Timeout(),
	})
	lyricsService := lyrics.NewService(lyricsClient, func(err error) bool {
		return errors.Is(err, lrclib.ErrNotFound)
	})

	deps := session.Deps{
		Playback: playback.Config{
			SampleInterval:   cfg.Playback.SampleInterval(),
			NearEnd:          cfg.Playback.NearEnd(),
			RestartThreshold: cfg.Playback.RestartThreshold(),
		},
		Library: backends.Library,
		Local:   backends.Local,
		Search:  chain,
		Lyrics:  lyricsService,
	}

	players := ytbridge.NewHub()
	sessions := registry.New(func(userID string) *session.Manager {
		return session.NewManager(userID, players.Get(userID), deps)
	}, registry.WithActivity(players.Attached), registry.WithRelease(players.Release))
	go sessions.RunSweeper(ctx, cfg.Server.SweepInterval(), cfg.Server.SessionIdle())

	api := rest.New(rest.Config{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		AdminToken:     cfg.Auth.AdminToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, sessions, players)

	// h2c serves HTTP/2 cleartext alongside HTTP/1.1 websocket upgrades.
	server := &http.Server{
		Handler:           h2c.NewHandler(api.Router(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.WithHint(errors.Wrapf(err, "failed to listen on %s", cfg.Server.Addr),
			"change server.addr or stop the process using the port")
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	hookEnv := []string{"SONORA_ADDR=" + ln.Addr().String()}
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started", hookEnv)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close sessions first so open streams end and pending writes flush.
	cancel()
	sessions.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped", hookEnv)
	return nil
}

// printProviders prints the registered search provider types.
func printProviders() {
	fmt.Println("Available search providers:")
	for _, name := range search.ProviderTypes() {
		fmt.Printf("  %s\n", name)
	}
}

// executeHooks runs shell commands in order with env added to the process
// environment. A failing hook is logged and the rest still run.
func executeHooks(hooks []string, stage string, env []string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))
	for i, hook := range hooks {
		cmd := exec.Command("sh", "-c", hook)
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		start := time.Now()
		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Hook failed: stage=%s index=%d command=%q", stage, i, hook)
			continue
		}
		zlog.Debug().Msgf("Hook done: stage=%s index=%d elapsed=%s", stage, i, time.Since(start))
	}
}
