package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/api"
	"github.com/CodeAtlas-hq/codeatlas/internal/config"
	"github.com/CodeAtlas-hq/codeatlas/internal/db"
	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	atlasnats "github.com/CodeAtlas-hq/codeatlas/internal/nats"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the graph store. Every read endpoint answers from it, so the API
	// will not start without one.
	store, err := graphstore.Open(ctx, cfg.Graph.Backend, cfg.Graph.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open graph store")
	}
	defer store.Close()
	log.Info().Str("backend", cfg.Graph.Backend).Msg("graph store ready")

	// Connect to database (optional). Without it the job endpoints return 503
	// while the graph reads keep working.
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to database, job endpoints disabled")
		} else {
			defer database.Close()
			if err := database.Migrate(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to run migrations")
			}
			log.Info().Msg("connected to database")
		}
	}

	// Connect to NATS (optional)
	var natsClient *atlasnats.Client
	if cfg.NATSURL != "" {
		natsClient, err = atlasnats.NewClient(cfg.NATSURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, jobs will be picked up by polling")
		} else {
			log.Info().Str("url", cfg.NATSURL).Msg("connected to NATS")
			defer natsClient.Close()
		}
	}

	// Create server
	srv, err := api.NewServer(cfg, api.Deps{
		Store: store,
		DB:    database,
		NATS:  natsClient,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Start server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Fatal().Err(err).Msg("could not gracefully shutdown the server")
		}
		close(done)
	}()

	log.Info().Int("port", cfg.Port).Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
