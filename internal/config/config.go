package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/hotspot-ingest-service/internal/catalog"
	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
)

// maxFetchDays is the upstream area API's lookback limit.
const maxFetchDays = 10

// Config holds all service settings, populated from environment variables.
type Config struct {
	FirmsAPIKey  string
	FirmsBaseURL string
	FirmsTimeout time.Duration

	DatabaseURL string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Pipeline settings.
	FetchDays       int
	SourceDelay     time.Duration
	RetryMaxElapsed time.Duration
	Region          domain.Region
	Timezone        *time.Location

	// Reverse-geocoding configuration.
	NominatimBaseURL string
	NominatimEnabled bool
	NominatimTimeout time.Duration
	GeocodeCacheSize int
	NominatimContact string
}

// Load reads configuration from environment variables, applying defaults
// where unset. Missing credentials and nonsense values fail here, at
// startup, rather than mid-run.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	firmsTimeout, err := parseDurationEnv("FIRMS_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	nominatimTimeout, err := parseDurationEnv("NOMINATIM_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	sourceDelay, err := parseDurationEnv("SOURCE_DELAY", "5s")
	if err != nil {
		return nil, err
	}
	retryMaxElapsed, err := parseDurationEnv("RETRY_MAX_ELAPSED", "30s")
	if err != nil {
		return nil, err
	}

	fetchDays, err := parseIntEnv("FETCH_DAYS", 1)
	if err != nil {
		return nil, err
	}
	if fetchDays < 1 || fetchDays > maxFetchDays {
		return nil, fmt.Errorf("FETCH_DAYS must be between 1 and %d", maxFetchDays)
	}

	cacheSize, err := parseIntEnv("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	if cacheSize < 1 {
		return nil, errors.New("GEOCODE_CACHE_SIZE must be positive")
	}

	tzName := envOrDefault("SCHEDULE_TIMEZONE", "America/Fortaleza")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", tzName, err)
	}

	region, err := loadRegion()
	if err != nil {
		return nil, err
	}

	nominatimEnabled := true
	if v := os.Getenv("NOMINATIM_ENABLED"); v != "" {
		nominatimEnabled = v == "true"
	}

	cfg := &Config{
		FirmsAPIKey:  os.Getenv("FIRMS_API_KEY"),
		FirmsBaseURL: envOrDefault("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov"),
		FirmsTimeout: firmsTimeout,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FetchDays:       fetchDays,
		SourceDelay:     sourceDelay,
		RetryMaxElapsed: retryMaxElapsed,
		Region:          region,
		Timezone:        tz,

		NominatimBaseURL: envOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimEnabled: nominatimEnabled,
		NominatimTimeout: nominatimTimeout,
		GeocodeCacheSize: cacheSize,
		NominatimContact: envOrDefault("NOMINATIM_CONTACT", "hotspot-ingest-service"),
	}

	if cfg.FirmsAPIKey == "" {
		return nil, errors.New("FIRMS_API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

// loadRegion reads the bounding region overrides, falling back to the
// catalog default for any unset edge.
func loadRegion() (domain.Region, error) {
	region := catalog.DefaultRegion()
	edges := []struct {
		env    string
		target *float64
	}{
		{"REGION_NORTH", &region.North},
		{"REGION_SOUTH", &region.South},
		{"REGION_EAST", &region.East},
		{"REGION_WEST", &region.West},
	}
	for _, e := range edges {
		s := os.Getenv(e.env)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Region{}, fmt.Errorf("invalid %s: %w", e.env, err)
		}
		*e.target = v
	}
	if region.North <= region.South {
		return domain.Region{}, errors.New("REGION_NORTH must be greater than REGION_SOUTH")
	}
	if region.East <= region.West {
		return domain.Region{}, errors.New("REGION_EAST must be greater than REGION_WEST")
	}
	return region, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
