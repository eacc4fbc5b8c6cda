// Package observability provides the service's structured logger and
// Prometheus metrics.
package observability

import (
	"log/slog"
	"os"

	"github.com/couchcryptid/hotspot-ingest-service/internal/config"
)

// NewLogger builds the process-wide slog logger from config. LOG_FORMAT
// selects the handler ("json" or "text"), LOG_LEVEL the minimum level;
// unknown values fall back to JSON at info.
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
