package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Fetch metrics.
	SourceFetches *prometheus.CounterVec
	FetchDuration prometheus.Histogram

	// Normalization metrics.
	DetectionsNormalized prometheus.Counter
	RowsSkipped          *prometheus.CounterVec // label: reason

	// Resolution metrics.
	GeocodeRequests  *prometheus.CounterVec // label: outcome={match,fallback,outside}
	GeocodeCache     *prometheus.CounterVec // label: result={hit,miss}
	GeocodeDuration  prometheus.Histogram
	ResolveFallbacks prometheus.Counter

	// Persistence metrics.
	DetectionsPersisted prometheus.Counter // attempted, duplicates included
	IncidentsInserted   prometheus.Counter
	DuplicatesSkipped   prometheus.Counter
	PersistErrors       prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunDuration,
		m.SourceFetches,
		m.FetchDuration,
		m.DetectionsNormalized,
		m.RowsSkipped,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeDuration,
		m.ResolveFallbacks,
		m.DetectionsPersisted,
		m.IncidentsInserted,
		m.DuplicatesSkipped,
		m.PersistErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotspot_ingest",
			Name:      "pipeline_running",
			Help:      "1 while an ingestion run is in flight.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotspot_ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run across all sources.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "source_fetches_total",
			Help:      "Source fetch attempts by outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotspot_ingest",
			Name:      "fetch_duration_seconds",
			Help:      "Hotspot source request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DetectionsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "detections_normalized_total",
			Help:      "Raw rows normalized into canonical detections.",
		}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "rows_skipped_total",
			Help:      "Raw rows dropped during normalization by reason.",
		}, []string{"reason"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "geocode_requests_total",
			Help:      "Locality resolutions by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "geocode_cache_total",
			Help:      "Reverse-geocode cache lookups by result.",
		}, []string{"result"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotspot_ingest",
			Name:      "geocode_duration_seconds",
			Help:      "Reverse-geocoding request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ResolveFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "resolve_fallbacks_total",
			Help:      "Localities resolved by nearest-neighbor fallback.",
		}),
		DetectionsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "detections_persisted_total",
			Help:      "Detections handed to the persister, duplicates included.",
		}),
		IncidentsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "incidents_inserted_total",
			Help:      "New fire incident rows inserted.",
		}),
		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "duplicates_skipped_total",
			Help:      "Detections skipped because the dedup key already existed.",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotspot_ingest",
			Name:      "persist_errors_total",
			Help:      "Per-detection persistence failures.",
		}),
	}
}
