package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"movielib/internal/api"
	"movielib/internal/config"
	"movielib/internal/logging"
	"movielib/internal/media"
	"movielib/internal/omdb"
	"movielib/internal/server"
	"movielib/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, logFile, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		panic("failed to set up logging: " + err.Error())
	}
	defer logFile.Close()

	logger.Info().
		Str("version", api.Version).
		Msg("starting movielib server")

	// Initialize storage
	store, err := storage.NewSQLiteStorage(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	if cfg.OMDB.APIKey == "" {
		logger.Warn().Msg("no OMDb API key configured - enrichment requests will be rejected")
	}

	scanner := media.NewScanner(store, afero.NewOsFs(), logger)
	omdbClient := omdb.NewClient(cfg.OMDB.BaseURL, cfg.OMDB.APIKey, cfg.OMDB.Timeout, logger)
	lookup, err := omdb.NewCachedLookup(omdbClient, cfg.OMDB.CacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize omdb cache")
	}
	enricher := media.NewEnricher(store, lookup, logger)

	srv := server.New(cfg, logger, store, scanner, enricher)

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("received shutdown signal")

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("server stopped")
}
