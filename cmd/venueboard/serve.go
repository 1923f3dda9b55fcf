package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"venueboard/internal/app/board"
	"venueboard/internal/auth"
	"venueboard/internal/catalog"
	"venueboard/internal/changefeed"
	"venueboard/internal/config"
	"venueboard/internal/httpapi"
	"venueboard/internal/logging"
	"venueboard/internal/metrics"
	"venueboard/internal/store"
)

const shutdownTimeout = 15 * time.Second

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "seed-demo",
				Usage:   "Create the demo venue (PIN 1234) if it does not exist",
				Sources: cli.EnvVars("VENUEBOARD_SEED_DEMO"),
			},
		},
		Before: a.loadConfig(config.ScopeServe),
		Action: a.serve,
	}
}

func (a *app) serve(ctx context.Context, cmd *cli.Command) error {
	cfg := a.cfg

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	dataStore := store.New(db)

	if cfg.RunMigrations {
		applied, err := dataStore.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			log.Info().Ints("versions", applied).Msg("applied migrations")
		}
	}

	if cmd.Bool("seed-demo") {
		if err := ensureDemoVenue(ctx, dataStore); err != nil {
			return err
		}
	}

	feed, feedCheck, err := openFeed(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer feed.Close()

	m := metrics.NewManager(metrics.WithRuntimeMetrics())

	boardSvc := board.New(dataStore, feed, board.WithGauge(m))
	staff := auth.NewService(dataStore, auth.NewTokenManager(cfg.JWTSecret, cfg.StaffTokenTTL()))
	catalogClient := newCatalogClient(cfg, m)

	api := httpapi.New(boardSvc, catalogClient, staff,
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins()),
		httpapi.WithMetrics(m, m.Handler()),
		httpapi.WithReadinessCheck("store", dataStore.Ping),
		httpapi.WithReadinessCheck("feed", feedCheck),
	)

	// Event streams stay open until their request context ends, so shutdown
	// cancels the base context instead of waiting for them.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("feed", cfg.FeedDriver).
			Bool("catalog", cfg.CatalogEnabled()).
			Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openFeed builds the configured change feed and its readiness check.
func openFeed(ctx context.Context, cfg *config.Config, db *sql.DB) (changefeed.Feed, httpapi.ReadinessCheck, error) {
	logger := logging.Component("changefeed")

	switch cfg.FeedDriver {
	case config.FeedRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		feed, err := changefeed.NewRedis(ctx, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return &closingFeed{Feed: feed, close: client.Close}, feed.Ping, nil
	case config.FeedPostgres:
		feed, err := changefeed.NewPostgres(db, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return feed, feed.Ping, nil
	default:
		return changefeed.NewMemory(), nil, nil
	}
}

// closingFeed releases a resource the feed does not own once the feed is closed.
type closingFeed struct {
	changefeed.Feed
	close func() error
}

func (f *closingFeed) Close() error {
	return errors.Join(f.Feed.Close(), f.close())
}

func newCatalogClient(cfg *config.Config, rec catalog.Recorder) *catalog.Client {
	if !cfg.CatalogEnabled() {
		log.Warn().Msg("catalog credentials not provided, track search will return no results")
	}
	return catalog.New(cfg.SpotifyClientID, cfg.SpotifyClientSecret,
		catalog.WithBaseURLs(cfg.CatalogAPIURL, cfg.CatalogTokenURL),
		catalog.WithHTTPClient(&http.Client{Timeout: cfg.CatalogTimeout()}),
		catalog.WithLimiter(rate.NewLimiter(rate.Limit(cfg.CatalogRateLimit), cfg.CatalogBurst)),
		catalog.WithMetrics(rec),
	)
}
