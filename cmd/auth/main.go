// Package main provides the Spotify authentication tool.
package main

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/cuebox/internal/infra/logger"
	"github.com/osa030/cuebox/internal/infra/spotify"
)

var (
	app          = kingpin.New("cuebox-auth", "Obtain a Spotify refresh token for cuebox")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	timeout      = app.Flag("timeout", "How long to wait for the browser").Default("5m").Duration()
)

type result struct {
	token *oauth2.Token
	err   error
}

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	closer, err := logger.Init(logger.Config{Output: "stderr", Level: "info"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotify.PlaybackScopes()...),
	)
	state := uuid.NewString()
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("state mismatch: %q", st)
			return
		}
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			results <- result{err: err}
			return
		}
		fmt.Fprintf(w, "<!DOCTYPE html><html><body><h1>%s</h1><p>You can close this window.</p></body></html>",
			html.EscapeString("cuebox authorization complete"))
		results <- result{token: token}
	})

	server := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", *port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			results <- result{err: err}
		}
	}()

	fmt.Println("Please visit the following URL to authorize cuebox:")
	fmt.Println()
	fmt.Println(auth.AuthURL(state))
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	var res result
	select {
	case res = <-results:
	case <-time.After(*timeout):
		res = result{err: errors.Newf("no authorization within %v", *timeout)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Warn().Msgf("failed to shutdown callback server: %v", err)
	}

	if res.err != nil {
		zlog.Error().Msgf("authorization failed: %v", res.err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("=== Authorization Successful ===")
	fmt.Println()
	fmt.Println("Add this to your config.yaml:")
	fmt.Println()
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: \"%s\"\n", res.token.RefreshToken)
	fmt.Println()
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", res.token.RefreshToken)
}
