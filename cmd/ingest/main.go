package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hotspot-ingest-service/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/hotspot-ingest-service/internal/adapter/http"
	"github.com/couchcryptid/hotspot-ingest-service/internal/adapter/nominatim"
	"github.com/couchcryptid/hotspot-ingest-service/internal/adapter/postgres"
	"github.com/couchcryptid/hotspot-ingest-service/internal/catalog"
	"github.com/couchcryptid/hotspot-ingest-service/internal/config"
	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
	"github.com/couchcryptid/hotspot-ingest-service/internal/pipeline"
)

func main() {
	// Local development convenience; the file is absent in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	localities, err := catalog.Localities()
	if err != nil {
		logger.Error("failed to load locality catalog", "error", err)
		os.Exit(1)
	}
	index, err := domain.NewLocalityIndex(localities)
	if err != nil {
		logger.Error("failed to build locality index", "error", err)
		os.Exit(1)
	}

	// Reverse geocoding is feature-flagged; without it every detection
	// resolves to the nearest catalog locality.
	var geocoder domain.ReverseGeocoder
	if cfg.NominatimEnabled {
		client := nominatim.NewClient(cfg, metrics, logger)
		geocoder = nominatim.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
		logger.Info("reverse geocoding enabled", "cache_size", cfg.GeocodeCacheSize, "timeout", cfg.NominatimTimeout)
	} else {
		logger.Info("reverse geocoding disabled")
	}

	resolver, err := domain.NewResolver(index, cfg.Region, geocoder, logger)
	if err != nil {
		logger.Error("failed to build resolver", "error", err)
		os.Exit(1)
	}

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL, metrics, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	fetcher := firms.NewClient(cfg, metrics, logger)
	clock := clockwork.NewRealClock()

	p := pipeline.New(fetcher, resolver, store, catalog.Sources(), cfg, clock, logger, metrics)
	scheduler := pipeline.NewScheduler(p, clock, cfg.Timezone, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, store, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// First run on startup, then daily at local midnight.
	go func() {
		if err := p.RunOnce(ctx); err != nil {
			logger.Error("initial ingestion run failed", "error", err)
		}
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
