package firms

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
)

const testPayload = "latitude,longitude,acq_date,acq_time\n-5.0,-45.0,2024-08-01,1342\n"

var (
	testRegion = domain.Region{North: -1.0, South: -10.3, East: -41.7, West: -48.8}
	testWindow = domain.NewDateRange(
		time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
	)
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     "test-key",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		maxElapsed: 2 * time.Second,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/area/csv/test-key/VIIRS_SNPP_NRT/")
		assert.Contains(t, r.URL.Path, "/1/2024-08-01")
		_, _ = w.Write([]byte(testPayload))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	payload, err := c.Fetch(context.Background(), "VIIRS_SNPP_NRT", testRegion, testWindow)
	require.NoError(t, err)
	assert.Equal(t, testPayload, payload)
}

func TestClient_Fetch_WindowTooWide(t *testing.T) {
	var called atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called.Store(true)
	}))
	defer srv.Close()

	wide := domain.NewDateRange(
		time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 11, 0, 0, 0, 0, time.UTC),
	)

	c := testClient(srv.URL)
	_, err := c.Fetch(context.Background(), "MODIS_NRT", testRegion, wide)
	require.ErrorIs(t, err, ErrWindowTooWide)
	assert.False(t, called.Load(), "validation must reject before any request")
}

func TestClient_Fetch_InvertedWindow(t *testing.T) {
	inverted := domain.DateRange{
		Start: time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	c := testClient("http://unused")
	_, err := c.Fetch(context.Background(), "MODIS_NRT", testRegion, inverted)
	require.Error(t, err)
}

func TestClient_Fetch_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(testPayload))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	payload, err := c.Fetch(context.Background(), "MODIS_NRT", testRegion, testWindow)
	require.NoError(t, err)
	assert.Equal(t, testPayload, payload)
	assert.GreaterOrEqual(t, calls.Load(), int64(2))
}

func TestClient_Fetch_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Fetch(context.Background(), "MODIS_NRT", testRegion, testWindow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int64(1), calls.Load(), "4xx must not be retried")
}

func TestClient_Fetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(srv.URL)
	_, err := c.Fetch(ctx, "MODIS_NRT", testRegion, testWindow)
	require.Error(t, err)
}
