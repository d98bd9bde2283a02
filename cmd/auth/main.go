// Package main provides the token and Spotify authorization tool.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/sonora/internal/api/rest"
	"github.com/osa030/sonora/internal/infra/config"
	"github.com/osa030/sonora/internal/infra/logger"
)

const oauthState = "sonora-auth-state"

var (
	app = kingpin.New("sonora-auth", "Session token and Spotify authorization tool for Sonora")

	tokenCmd    = app.Command("token", "Mint a session token for a user")
	tokenConfig = tokenCmd.Flag("config", "Path to config file").Default("config/server.yaml").String()
	tokenUser   = tokenCmd.Arg("user-id", "User id").Required().String()
	tokenName   = tokenCmd.Flag("name", "Display name").String()
	tokenTTL    = tokenCmd.Flag("ttl", "Token lifetime (defaults to auth.token_ttl_hours)").Duration()

	spotifyCmd   = app.Command("spotify", "Run the Spotify OAuth flow and print a refresh token")
	clientID     = spotifyCmd.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = spotifyCmd.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = spotifyCmd.Flag("port", "Callback server port").Default("8888").Int()
)

func main() {
	_ = godotenv.Load()
	if err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case tokenCmd.FullCommand():
		if err := mintToken(); err != nil {
			zlog.Fatal().Msgf("Failed to mint token: %v", err)
		}
	case spotifyCmd.FullCommand():
		if err := authorizeSpotify(); err != nil {
			zlog.Fatal().Msgf("Spotify authorization failed: %v", err)
		}
	}
}

func mintToken() error {
	cfg, err := config.Load(*tokenConfig)
	if err != nil {
		return err
	}
	ttl := cfg.Auth.TokenTTL()
	if *tokenTTL > 0 {
		ttl = *tokenTTL
	}
	token, err := rest.IssueToken([]byte(cfg.Auth.JWTSecret), *tokenUser, *tokenName, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func authorizeSpotify() error {
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	tokens := make(chan *oauth2.Token, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != oauthState {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("State mismatch: %s != %s", st, oauthState)
			return
		}
		token, err := auth.Token(r.Context(), oauthState, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			zlog.Warn().Err(err).Msg("Failed to get token")
			return
		}
		fmt.Fprintln(w, "Sonora authorization complete. You can close this window.")
		tokens <- token
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	fmt.Println("Please visit the following URL to authorize Sonora:")
	fmt.Println("")
	fmt.Println(auth.AuthURL(oauthState))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var token *oauth2.Token
	select {
	case token = <-tokens:
	case err := <-serverErr:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Warn().Err(err).Msg("Failed to shutdown callback server")
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Add this to your config/server.yaml:")
	fmt.Println("")
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: \"%s\"\n", token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", token.RefreshToken)
	return nil
}
