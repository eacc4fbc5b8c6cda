// Package nominatim implements reverse geocoding against a Nominatim-style
// HTTP API. Results are best-effort: the resolver falls back to the locality
// index whenever this adapter errors or returns nothing useful.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/hotspot-ingest-service/internal/config"
	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
)

// Client implements domain.ReverseGeocoder using the Nominatim reverse API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	maxElapsed time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim reverse-geocoding client.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.NominatimTimeout,
		},
		baseURL: cfg.NominatimBaseURL,
		// Nominatim's usage policy requires an identifying User-Agent.
		userAgent:  cfg.NominatimContact,
		maxElapsed: cfg.RetryMaxElapsed,
		metrics:    metrics,
		logger:     logger,
	}
}

// ReverseGeocode converts a coordinate to an administrative address.
// Transient failures retry with backoff inside the configured budget;
// whatever error remains is the caller's cue to use the fallback.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	params := url.Values{
		"format":         {"jsonv2"},
		"lat":            {fmt.Sprintf("%.6f", lat)},
		"lon":            {fmt.Sprintf("%.6f", lon)},
		"zoom":           {"10"},
		"addressdetails": {"1"},
	}
	fullURL := c.baseURL + "/reverse?" + params.Encode()

	var addr domain.Address
	operation := func() error {
		result, err := c.doRequest(ctx, fullURL)
		if err != nil {
			return err
		}
		addr = result
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return domain.Address{}, fmt.Errorf("reverse geocode: %w", err)
	}
	return addr, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.Address, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Address{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Address{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.GeocodeDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return domain.Address{}, backoff.Permanent(err)
		}
		return domain.Address{}, err
	}

	var nr response
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return domain.Address{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}

	return domain.Address{
		City:         nr.Address.City,
		Town:         nr.Address.Town,
		Village:      nr.Address.Village,
		Municipality: nr.Address.Municipality,
		State:        nr.Address.State,
	}, nil
}

// Nominatim API response types.

type response struct {
	Address address `json:"address"`
}

type address struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	State        string `json:"state"`
}
