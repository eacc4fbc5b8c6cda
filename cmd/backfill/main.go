// Command backfill re-ingests a historical date range. Wide ranges are
// chunked to fit the upstream lookback limit and run sequentially, oldest
// first. Persistence is idempotent, so overlapping an already-ingested
// range is safe.
//
// Usage:
//
//	go run ./cmd/backfill -start 2024-07-01 -end 2024-07-31
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hotspot-ingest-service/internal/adapter/firms"
	"github.com/couchcryptid/hotspot-ingest-service/internal/adapter/nominatim"
	"github.com/couchcryptid/hotspot-ingest-service/internal/adapter/postgres"
	"github.com/couchcryptid/hotspot-ingest-service/internal/catalog"
	"github.com/couchcryptid/hotspot-ingest-service/internal/config"
	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
	"github.com/couchcryptid/hotspot-ingest-service/internal/pipeline"
)

// chunkDays keeps each fetch window within the upstream 10-day lookback.
const chunkDays = 10

func main() {
	startFlag := flag.String("start", "", "first day of the range (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "last day of the range (YYYY-MM-DD), inclusive")
	flag.Parse()

	if *startFlag == "" || *endFlag == "" {
		flag.Usage()
		os.Exit(1)
	}

	window, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		slog.Error("invalid range", "error", err)
		os.Exit(1)
	}

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

	if err := run(ctx, cfg, window, logger, metrics); err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, window domain.DateRange, logger *slog.Logger, metrics *observability.Metrics) error {
	localities, err := catalog.Localities()
	if err != nil {
		return fmt.Errorf("load locality catalog: %w", err)
	}
	index, err := domain.NewLocalityIndex(localities)
	if err != nil {
		return fmt.Errorf("build locality index: %w", err)
	}

	var geocoder domain.ReverseGeocoder
	if cfg.NominatimEnabled {
		client := nominatim.NewClient(cfg, metrics, logger)
		geocoder = nominatim.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
	}

	resolver, err := domain.NewResolver(index, cfg.Region, geocoder, logger)
	if err != nil {
		return fmt.Errorf("build resolver: %w", err)
	}

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL, metrics, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	fetcher := firms.NewClient(cfg, metrics, logger)
	p := pipeline.New(fetcher, resolver, store, catalog.Sources(), cfg, clockwork.NewRealClock(), logger, metrics)

	chunks := chunkRange(window, chunkDays)
	logger.Info("backfill starting",
		"start", window.Start.Format("2006-01-02"),
		"end", window.End.Format("2006-01-02"),
		"chunks", len(chunks),
	)

	for i, chunk := range chunks {
		logger.Info("backfill chunk",
			"chunk", i+1,
			"of", len(chunks),
			"start", chunk.Start.Format("2006-01-02"),
			"end", chunk.End.Format("2006-01-02"),
		)
		if err := p.RunWindow(ctx, chunk); err != nil {
			return fmt.Errorf("chunk %s to %s: %w",
				chunk.Start.Format("2006-01-02"), chunk.End.Format("2006-01-02"), err)
		}
	}

	logger.Info("backfill complete", "chunks", len(chunks))
	return nil
}

func parseRange(startStr, endStr string) (domain.DateRange, error) {
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("invalid -start: %w", err)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("invalid -end: %w", err)
	}
	window := domain.NewDateRange(start, end)
	if window.Days() == 0 {
		return domain.DateRange{}, fmt.Errorf("-end %s is before -start %s", endStr, startStr)
	}
	return window, nil
}

// chunkRange splits a range into consecutive windows of at most maxDays
// days each, oldest first.
func chunkRange(window domain.DateRange, maxDays int) []domain.DateRange {
	var chunks []domain.DateRange
	start := window.Start
	for !start.After(window.End) {
		end := start.AddDate(0, 0, maxDays-1)
		if end.After(window.End) {
			end = window.End
		}
		chunks = append(chunks, domain.NewDateRange(start, end))
		start = end.AddDate(0, 0, 1)
	}
	return chunks
}
