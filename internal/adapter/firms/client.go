// Package firms fetches raw hotspot detections from the FIRMS area API.
package firms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/hotspot-ingest-service/internal/config"
	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
)

// maxWindowDays is the upstream service's maximum lookback window.
const maxWindowDays = 10

// ErrWindowTooWide marks a fetch request wider than the upstream lookback
// limit. Rejected at call entry, before any request is made.
var ErrWindowTooWide = errors.New("date range exceeds upstream lookback window")

// Client retrieves raw detection payloads per source.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxElapsed time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a hotspot source client.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: cfg.FirmsAPIKey,
		httpClient: &http.Client{
			Timeout: cfg.FirmsTimeout,
		},
		baseURL:    cfg.FirmsBaseURL,
		maxElapsed: cfg.RetryMaxElapsed,
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch returns the raw delimited payload for one source over the given
// region and whole-day window. Transient failures are retried with
// exponential backoff up to the configured elapsed budget; client errors
// from upstream are permanent. An over-wide window is a validation error,
// never silently truncated.
func (c *Client) Fetch(ctx context.Context, source string, region domain.Region, window domain.DateRange) (string, error) {
	days := window.Days()
	if days < 1 {
		return "", fmt.Errorf("fetch %s: empty or inverted date range", source)
	}
	if days > maxWindowDays {
		return "", fmt.Errorf("fetch %s: %d days: %w", source, days, ErrWindowTooWide)
	}

	url := fmt.Sprintf("%s/api/area/csv/%s/%s/%.1f,%.1f,%.1f,%.1f/%d/%s",
		c.baseURL, c.apiKey, source,
		region.West, region.South, region.East, region.North,
		days, window.Start.Format("2006-01-02"))

	var payload string
	operation := func() error {
		body, err := c.doRequest(ctx, url)
		if err != nil {
			return err
		}
		payload = body
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", fmt.Errorf("fetch %s: %w", source, err)
	}
	return payload, nil
}

func (c *Client) doRequest(ctx context.Context, url string) (string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("hotspot source request: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("hotspot source API error: status %d: %s", resp.StatusCode, body)
		// 4xx means the request itself is wrong; retrying cannot fix it.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}
