package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hotspot-ingest-service/internal/catalog"
	"github.com/couchcryptid/hotspot-ingest-service/internal/config"
	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
	"github.com/couchcryptid/hotspot-ingest-service/internal/pipeline"
)

const payloadHeader = "latitude,longitude,brightness,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_t31,frp,daynight"

var (
	testRegion  = domain.Region{North: -1.0, South: -10.3, East: -41.7, West: -48.8}
	testSources = []catalog.Source{
		{ID: "MODIS_NRT", Name: "MODIS"},
		{ID: "VIIRS_SNPP_NRT", Name: "VIIRS"},
	}
)

func detectionRow(lat, lon float64, date, hhmm string) string {
	return fmt.Sprintf("%.4f,%.4f,330.5,1.1,1.0,%s,%s,Terra,MODIS,84,6.1NRT,302.2,25.6,D", lat, lon, date, hhmm)
}

// --- mocks ---

type mockFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	errs     map[string]error
	windows  []domain.DateRange
	started  chan struct{} // closed on first call when non-nil
	release  chan struct{} // blocks the first call when non-nil
}

func (m *mockFetcher) Fetch(_ context.Context, source string, _ domain.Region, window domain.DateRange) (string, error) {
	m.mu.Lock()
	first := len(m.windows) == 0
	m.windows = append(m.windows, window)
	m.mu.Unlock()

	if first && m.started != nil {
		close(m.started)
	}
	if first && m.release != nil {
		<-m.release
	}
	if err := m.errs[source]; err != nil {
		return "", err
	}
	return m.payloads[source], nil
}

type mockResolver struct {
	err error
}

func (m *mockResolver) Resolve(_ context.Context, lat, lon float64) (domain.ResolvedLocality, error) {
	if m.err != nil {
		return domain.ResolvedLocality{}, m.err
	}
	return domain.ResolvedLocality{Name: "Barra do Corda", State: "MA", Fallback: true}, nil
}

type mockPersister struct {
	mu      sync.Mutex
	batches map[string][]domain.ResolvedDetection
	err     error
}

func (m *mockPersister) Persist(_ context.Context, source string, batch []domain.ResolvedDetection) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batches == nil {
		m.batches = make(map[string][]domain.ResolvedDetection)
	}
	m.batches[source] = append(m.batches[source], batch...)
	return len(batch), nil
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Region:      testRegion,
		FetchDays:   1,
		SourceDelay: 0,
	}
}

func newPipeline(f pipeline.Fetcher, r pipeline.Resolver, p pipeline.Persister, cfg *config.Config, clock clockwork.Clock) *pipeline.Pipeline {
	return pipeline.New(f, r, p, testSources, cfg, clock, testLogger(), observability.NewMetricsForTesting())
}

// --- tests ---

func TestPipeline_RunOnce_HappyPath(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{payloads: map[string]string{
		"MODIS_NRT": payloadHeader + "\n" +
			detectionRow(-5.0, -45.0, "2024-08-01", "1342") + "\n" +
			detectionRow(-5.1, -45.1, "2024-08-01", "1343") + "\n",
		"VIIRS_SNPP_NRT": payloadHeader + "\n" +
			detectionRow(-6.0, -46.0, "2024-08-01", "0210") + "\n",
	}}
	persister := &mockPersister{}

	p := newPipeline(fetcher, &mockResolver{}, persister, testConfig(), clock)

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Len(t, persister.batches["MODIS_NRT"], 2)
	assert.Len(t, persister.batches["VIIRS_SNPP_NRT"], 1)
	assert.Equal(t, "Barra do Corda", persister.batches["MODIS_NRT"][0].Locality)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunOnce_SourceFailureDoesNotAbortRun(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{
		errs: map[string]error{"MODIS_NRT": errors.New("upstream down")},
		payloads: map[string]string{
			"VIIRS_SNPP_NRT": payloadHeader + "\n" + detectionRow(-6.0, -46.0, "2024-08-01", "0210") + "\n",
		},
	}
	persister := &mockPersister{}

	p := newPipeline(fetcher, &mockResolver{}, persister, testConfig(), clock)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Empty(t, persister.batches["MODIS_NRT"])
	assert.Len(t, persister.batches["VIIRS_SNPP_NRT"], 1)
	assert.NoError(t, p.CheckReadiness(context.Background()), "run completes despite a failed source")
}

func TestPipeline_RunOnce_MalformedRowTolerance(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{payloads: map[string]string{
		"MODIS_NRT": payloadHeader + "\n" +
			detectionRow(-5.0, -45.0, "2024-08-01", "1342") + "\n" +
			"-5.1,-45.1,oops\n",
		"VIIRS_SNPP_NRT": payloadHeader + "\n",
	}}
	persister := &mockPersister{}

	p := newPipeline(fetcher, &mockResolver{}, persister, testConfig(), clock)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Len(t, persister.batches["MODIS_NRT"], 1)
}

func TestPipeline_RunOnce_UnresolvableDetectionSkipped(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{payloads: map[string]string{
		"MODIS_NRT":      payloadHeader + "\n" + detectionRow(-5.0, -45.0, "2024-08-01", "1342") + "\n",
		"VIIRS_SNPP_NRT": payloadHeader + "\n",
	}}
	persister := &mockPersister{}

	p := newPipeline(fetcher, &mockResolver{err: domain.ErrOutsideRegion}, persister, testConfig(), clock)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Empty(t, persister.batches["MODIS_NRT"])
}

func TestPipeline_RunOnce_DefaultWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 10, 9, 30, 0, 0, time.UTC))
	fetcher := &mockFetcher{}
	cfg := testConfig()
	cfg.FetchDays = 3

	p := newPipeline(fetcher, &mockResolver{}, &mockPersister{}, cfg, clock)

	require.NoError(t, p.RunOnce(context.Background()))
	require.NotEmpty(t, fetcher.windows)

	window := fetcher.windows[0]
	assert.Equal(t, time.Date(2024, 8, 8, 0, 0, 0, 0, time.UTC), window.Start)
	assert.Equal(t, time.Date(2024, 8, 10, 0, 0, 0, 0, time.UTC), window.End)
	assert.Equal(t, 3, window.Days())
}

func TestPipeline_TryRunOnce_WhileRunning(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	p := newPipeline(fetcher, &mockResolver{}, &mockPersister{}, testConfig(), clock)

	done := make(chan error, 1)
	go func() { done <- p.RunOnce(context.Background()) }()

	<-fetcher.started
	err := p.TryRunOnce(context.Background())
	require.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(fetcher.release)
	require.NoError(t, <-done)

	// Lock released; the manual trigger works now.
	require.NoError(t, p.TryRunOnce(context.Background()))
}

func TestPipeline_StartManual(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	p := newPipeline(fetcher, &mockResolver{}, &mockPersister{}, testConfig(), clock)

	require.NoError(t, p.StartManual(context.Background()))
	<-fetcher.started

	// Second trigger while the background run holds the lock.
	require.ErrorIs(t, p.StartManual(context.Background()), pipeline.ErrRunInProgress)

	close(fetcher.release)

	// The background run releases the lock when it finishes.
	require.Eventually(t, func() bool {
		return p.CheckReadiness(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_RunWindow_ContextCancelled(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{}

	p := newPipeline(fetcher, &mockResolver{}, &mockPersister{}, testConfig(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	window := domain.NewDateRange(
		time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
	)
	err := p.RunWindow(ctx, window)
	require.ErrorIs(t, err, context.Canceled)
}
