package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/analyzer"
	"github.com/CodeAtlas-hq/codeatlas/internal/config"
	"github.com/CodeAtlas-hq/codeatlas/internal/db"
	"github.com/CodeAtlas-hq/codeatlas/internal/gitrepo"
	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	atlasnats "github.com/CodeAtlas-hq/codeatlas/internal/nats"
	"github.com/CodeAtlas-hq/codeatlas/internal/worker"
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

	// Determine worker type from env or args
	workerType := os.Getenv("WORKER_TYPE")
	if workerType == "" {
		workerType = "all" // Run all worker types
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database. Workers claim jobs through it, so unlike the API
	// there is no degraded mode without one.
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("connected to database")

	// Connect to NATS (optional)
	var natsClient *atlasnats.Client
	if cfg.NATSURL != "" {
		natsClient, err = atlasnats.NewClient(cfg.NATSURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, workers will poll database")
		} else {
			log.Info().Str("url", cfg.NATSURL).Msg("connected to NATS")
			defer natsClient.Close()
		}
	}

	// Open the graph store the analyses write to.
	store, err := graphstore.Open(ctx, cfg.Graph.Backend, cfg.Graph.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open graph store")
	}
	defer store.Close()
	log.Info().Str("backend", cfg.Graph.Backend).Msg("graph store ready")

	// Create worker pool
	poolCfg := worker.PoolConfig{
		WorkerType: workerType,
		DB:         database,
		NATS:       natsClient,
		Analyzer:   analyzer.New(store, cfg.Analysis),
		Repos:      gitrepo.NewService(cfg.ReposDir, cfg.GitToken),
	}

	pool, err := worker.NewPool(poolCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("worker pool is shutting down...")
		cancel()
	}()

	log.Info().Str("type", workerType).Msg("starting worker pool")
	if err := pool.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker pool error")
	}

	log.Info().Msg("worker pool stopped")
}
