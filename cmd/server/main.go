// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/cuebox/internal/api/connect"
	"github.com/osa030/cuebox/internal/app/filter"
	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/app/queue"
	"github.com/osa030/cuebox/internal/app/replenish"
	"github.com/osa030/cuebox/internal/infra/config"
	"github.com/osa030/cuebox/internal/infra/logger"
	"github.com/osa030/cuebox/internal/infra/spotify"
)

var (
	app        = kingpin.New("cuebox-server", "cuebox playback session server")
	configPath = app.Flag("config", "Path to config file").Default(config.DefaultPath()).String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (overrides config)").String()

	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	zlog.Info().Msgf("Loaded config from %s", *configPath)

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	creds, err := spotify.NewRefreshCredentials(ctx, spotify.RefreshConfig{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create credentials")
	}

	spotifyClient, err := spotify.New(creds, spotify.Config{
		Market:     cfg.Spotify.Market,
		DeviceName: cfg.Spotify.DeviceName,
		BaseURL:    cfg.Spotify.BaseURL,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify client")
	}

	store := queue.NewStore()
	store.SetVolume(cfg.Playback.DefaultVolume)

	replenisher, err := replenish.NewReplenisherFromConfig(cfg, spotifyClient, store)
	if err != nil {
		return errors.Wrap(err, "failed to create replenisher")
	}

	session := spotify.NewPlayerSession(spotifyClient, cfg.PollInterval())
	controller := playback.NewController(playback.Deps{
		Store:         store,
		Transport:     spotifyClient,
		Recommender:   replenisher,
		Session:       session,
		Authenticated: func() bool { return creds.Credential().IsAuthenticated },
		OnLogout:      creds.Revoke,
	}, playback.Config{
		TrackEndCooldown: cfg.TrackEndCooldown(),
	})

	notifications := notification.NewManager()
	store.OnChange(func(snap queue.Snapshot) {
		notifications.Publish(apiconnect.EncodeSnapshot(snap))
	})
	go notifications.Run(ctx)
	go logControllerEvents(ctx, controller)

	controllerDone := make(chan error, 1)
	go func() {
		controllerDone <- controller.Run(ctx)
	}()

	service := apiconnect.NewPlayerService(controller, store, spotifyClient, notifications)
	mux := http.NewServeMux()
	path, handler := apiconnect.NewPlayerServiceHandler(
		service,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.APIToken)),
	)
	mux.Handle(path, handler)
	if cfg.Server.APIToken == "" {
		zlog.Warn().Msg("Control API token not set, API is open")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running hooks that may call it.
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-controllerDone:
		if err != nil {
			runErr = errors.Wrap(err, "playback controller stopped")
		} else {
			zlog.Info().Msg("Device session ended, shutting down...")
		}
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// End streams first so Shutdown does not wait on them.
	service.Close()
	notifications.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	cancel()
	controller.Wait()

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// logControllerEvents surfaces controller events in the server log.
func logControllerEvents(ctx context.Context, controller *playback.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-controller.Events():
			switch ev.Type {
			case playback.EventLoginRequired:
				zlog.Warn().Msg("Spotify login required: run cuebox-auth and update the refresh token")
			case playback.EventError:
				zlog.Debug().Msgf("Playback error: %v", ev.Err)
			default:
				if ev.Track != nil {
					zlog.Info().Msgf("Playback %s: %s", ev.Type, ev.Track)
				} else {
					zlog.Info().Msgf("Playback %s", ev.Type)
				}
			}
		}
	}
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.Registered() {
		f, _ := filter.New(name, filter.Deps{})
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
