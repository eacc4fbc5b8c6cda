// Package pipeline orchestrates one ingestion cycle: per-source fetch,
// normalization, locality resolution, and deduplicated persistence.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hotspot-ingest-service/internal/catalog"
	"github.com/couchcryptid/hotspot-ingest-service/internal/config"
	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
)

// ErrRunInProgress is returned by TryRunOnce while another run holds the
// run lock.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Fetcher retrieves the raw payload for one source over a region and window.
type Fetcher interface {
	Fetch(ctx context.Context, source string, region domain.Region, window domain.DateRange) (string, error)
}

// Resolver maps a coordinate to a locality.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (domain.ResolvedLocality, error)
}

// Persister upserts a batch of resolved detections for one source.
type Persister interface {
	Persist(ctx context.Context, source string, batch []domain.ResolvedDetection) (int, error)
}

// Pipeline runs the fetch → normalize → resolve → persist cycle over all
// catalog sources. Runs are serialized by a run lock so a manual trigger
// cannot race a scheduled run against the same dedup keys.
type Pipeline struct {
	fetcher   Fetcher
	resolver  Resolver
	persister Persister
	sources   []catalog.Source

	region      domain.Region
	fetchDays   int
	sourceDelay time.Duration

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	ready atomic.Bool
}

// New creates a Pipeline over the catalog sources.
func New(f Fetcher, r Resolver, p Persister, sources []catalog.Source, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:     f,
		resolver:    r,
		persister:   p,
		sources:     sources,
		region:      cfg.Region,
		fetchDays:   cfg.FetchDays,
		sourceDelay: cfg.SourceDelay,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness returns nil once at least one run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// RunOnce executes one run over the default window: the last FetchDays
// whole days ending today.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	return p.RunWindow(ctx, p.defaultWindow())
}

// RunWindow executes one run over an explicit window, waiting for any
// in-flight run to finish first.
func (p *Pipeline) RunWindow(ctx context.Context, window domain.DateRange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run(ctx, window)
}

// TryRunOnce is the non-blocking variant used by the manual refresh
// trigger: it fails fast with ErrRunInProgress instead of queueing.
func (p *Pipeline) TryRunOnce(ctx context.Context) error {
	if !p.mu.TryLock() {
		return ErrRunInProgress
	}
	defer p.mu.Unlock()
	return p.run(ctx, p.defaultWindow())
}

// StartManual begins a run in the background if none is in flight, failing
// fast with ErrRunInProgress otherwise. The run is detached from the
// caller's context so an HTTP trigger's response cycle does not cancel it.
func (p *Pipeline) StartManual(ctx context.Context) error {
	if !p.mu.TryLock() {
		return ErrRunInProgress
	}
	go func() {
		defer p.mu.Unlock()
		if err := p.run(context.WithoutCancel(ctx), p.defaultWindow()); err != nil {
			p.logger.Error("manual run failed", "error", err)
		}
	}()
	return nil
}

func (p *Pipeline) defaultWindow() domain.DateRange {
	end := p.clock.Now().UTC()
	start := end.AddDate(0, 0, -(p.fetchDays - 1))
	return domain.NewDateRange(start, end)
}

// run processes every source sequentially with the mandatory inter-source
// delay. A per-source failure is logged and the run continues; only context
// cancellation aborts. The run completes, and readiness flips, even when
// some sources failed.
func (p *Pipeline) run(ctx context.Context, window domain.DateRange) error {
	logger := p.logger.With("run_id", uuid.NewString())
	logger.Info("ingestion run started",
		"start", window.Start.Format("2006-01-02"),
		"end", window.End.Format("2006-01-02"),
		"sources", len(p.sources),
	)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	start := p.clock.Now()

	for i, src := range p.sources {
		if i > 0 && !p.sleep(ctx, p.sourceDelay) {
			return ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.runSource(ctx, logger, src, window); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.metrics.SourceFetches.WithLabelValues(src.ID, "error").Inc()
			logger.Error("source ingestion failed", "source", src.ID, "error", err)
			continue
		}
		p.metrics.SourceFetches.WithLabelValues(src.ID, "success").Inc()
	}

	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	logger.Info("ingestion run finished", "duration", p.clock.Since(start))
	return nil
}

func (p *Pipeline) runSource(ctx context.Context, logger *slog.Logger, src catalog.Source, window domain.DateRange) error {
	payload, err := p.fetcher.Fetch(ctx, src.ID, p.region, window)
	if err != nil {
		return err
	}

	seq, err := domain.ParseDetections(payload, window, p.region, func(reason domain.SkipReason) {
		p.metrics.RowsSkipped.WithLabelValues(string(reason)).Inc()
	})
	if err != nil {
		return err
	}

	var batch []domain.ResolvedDetection
	for det := range seq {
		p.metrics.DetectionsNormalized.Inc()

		resolved, err := p.resolver.Resolve(ctx, det.Latitude, det.Longitude)
		if err != nil {
			// Normalization already filtered to the region, so this only
			// fires when region config and resolver disagree.
			p.metrics.GeocodeRequests.WithLabelValues("outside").Inc()
			logger.Warn("detection skipped, unresolvable",
				"source", src.ID, "lat", det.Latitude, "lon", det.Longitude, "error", err)
			continue
		}
		if resolved.Fallback {
			p.metrics.GeocodeRequests.WithLabelValues("fallback").Inc()
			p.metrics.ResolveFallbacks.Inc()
		} else {
			p.metrics.GeocodeRequests.WithLabelValues("match").Inc()
		}

		batch = append(batch, domain.ResolvedDetection{
			Detection: det,
			Locality:  resolved.Name,
			State:     resolved.State,
		})
	}

	attempted, err := p.persister.Persist(ctx, src.ID, batch)
	if err != nil {
		return err
	}

	logger.Info("source ingested", "source", src.ID, "detections", attempted)
	return nil
}

// sleep waits for the inter-source delay unless the context ends first.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}
