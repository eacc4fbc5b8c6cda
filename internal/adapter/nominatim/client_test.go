package nominatim

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
)

const testUserAgent = "hotspot-ingest-test"

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		userAgent:  testUserAgent,
		maxElapsed: 2 * time.Second,
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "-5.506300", r.URL.Query().Get("lat"))
		assert.Equal(t, "-45.237700", r.URL.Query().Get("lon"))
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))

		resp := response{Address: address{Town: "Barra do Corda", State: "Maranhão"}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	addr, err := c.ReverseGeocode(context.Background(), -5.5063, -45.2377)
	require.NoError(t, err)

	assert.Equal(t, "Barra do Corda", addr.Town)
	assert.Equal(t, "Maranhão", addr.State)
	assert.Equal(t, "Barra do Corda", addr.Settlement())
}

func TestClient_ReverseGeocode_NoSettlement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response{}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	addr, err := c.ReverseGeocode(context.Background(), -5.0, -45.0)
	require.NoError(t, err)
	assert.Empty(t, addr.Settlement())
}

func TestClient_ReverseGeocode_RetriesServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response{Address: address{City: "Imperatriz"}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	addr, err := c.ReverseGeocode(context.Background(), -5.5, -47.5)
	require.NoError(t, err)
	assert.Equal(t, "Imperatriz", addr.City)
	assert.GreaterOrEqual(t, calls.Load(), int64(2))
}

func TestClient_ReverseGeocode_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ReverseGeocode(context.Background(), -5.0, -45.0)
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_ReverseGeocode_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ReverseGeocode(context.Background(), -5.0, -45.0)
	require.Error(t, err)
}
