// Package postgres is the deduplicating persister and read-query surface
// over the three-table dimensional store (sensors, fire_locations,
// fire_incidents). It is the only writer; uniqueness constraints carry the
// dedup invariants, so re-ingesting a detection is a no-op at the database
// level regardless of what callers do.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/observability"
)

//go:embed schema.sql
var schemaSQL string

// Store persists resolved detections and serves incident read queries.
type Store struct {
	pool    *pgxpool.Pool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewStore connects to the database, verifies the connection, and applies
// the schema DDL. Statements are idempotent, so startup is safe to repeat.
func NewStore(ctx context.Context, databaseURL string, metrics *observability.Metrics, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, metrics: metrics, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Persist upserts a batch of resolved detections for one source. Each
// detection runs its own short statements; no transaction spans the batch
// and nothing network-bound happens between statements. A per-detection
// failure is logged and counted, and the batch continues.
//
// The returned count is detections attempted, not inserted; duplicates are
// silently skipped by the incident constraint.
func (s *Store) Persist(ctx context.Context, source string, batch []domain.ResolvedDetection) (int, error) {
	attempted := 0
	for _, det := range batch {
		if err := ctx.Err(); err != nil {
			return attempted, err
		}
		attempted++
		s.metrics.DetectionsPersisted.Inc()

		if err := s.persistOne(ctx, source, det); err != nil {
			s.metrics.PersistErrors.Inc()
			s.logger.Error("persist detection failed",
				"source", source,
				"lat", det.Latitude,
				"lon", det.Longitude,
				"acquired_at", det.AcquiredAt,
				"error", err,
			)
		}
	}
	return attempted, nil
}

func (s *Store) persistOne(ctx context.Context, source string, det domain.ResolvedDetection) error {
	sensorID, err := s.ensureSensor(ctx, source, det.Satellite, det.Instrument)
	if err != nil {
		return fmt.Errorf("ensure sensor: %w", err)
	}

	locationID, err := s.ensureLocation(ctx, det)
	if err != nil {
		return fmt.Errorf("ensure location: %w", err)
	}

	inserted, err := s.insertIncident(ctx, locationID, sensorID, det)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	if inserted {
		s.metrics.IncidentsInserted.Inc()
	} else {
		s.metrics.DuplicatesSkipped.Inc()
	}
	return nil
}

// ensureSensor returns the dimension row id for the sensor triple, creating
// it on first use. Existing rows are never updated.
func (s *Store) ensureSensor(ctx context.Context, source, satellite, instrument string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sensors (source, satellite, instrument)
		VALUES ($1, $2, $3)
		ON CONFLICT (source, satellite, instrument) DO NOTHING
		RETURNING id`,
		source, satellite, instrument,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT id FROM sensors
		WHERE source = $1 AND satellite = $2 AND instrument = $3`,
		source, satellite, instrument,
	).Scan(&id)
	return id, err
}

// ensureLocation returns the location row id for the exact coordinate pair,
// creating it with the resolved locality on first use. A later detection at
// the same coordinates keeps the original locality — first write wins.
func (s *Store) ensureLocation(ctx context.Context, det domain.ResolvedDetection) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO fire_locations (latitude, longitude, state, locality)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (latitude, longitude) DO NOTHING
		RETURNING id`,
		det.Latitude, det.Longitude, det.State, det.Locality,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT id FROM fire_locations
		WHERE latitude = $1 AND longitude = $2`,
		det.Latitude, det.Longitude,
	).Scan(&id)
	return id, err
}

// insertIncident inserts the fact row unless the (location, sensor,
// acquired_at) key already exists. Reports whether a row was inserted.
func (s *Store) insertIncident(ctx context.Context, locationID, sensorID int64, det domain.ResolvedDetection) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO fire_incidents
			(location_id, sensor_id, acquired_at, brightness, scan, track,
			 frp, day_night, confidence, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (location_id, sensor_id, acquired_at) DO NOTHING`,
		locationID, sensorID, det.AcquiredAt, det.Brightness, det.Scan,
		det.Track, det.FRP, det.DayNight, det.Confidence, det.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// QueryIncidents returns incidents joined to their location and sensor
// dimensions, newest acquisition first. An empty locality matches all.
func (s *Store) QueryIncidents(ctx context.Context, from, to time.Time, locality string) ([]domain.Incident, error) {
	query := `
		SELECT i.id, l.latitude, l.longitude, l.locality, l.state,
		       se.source, se.satellite, se.instrument,
		       i.acquired_at, i.brightness, i.scan, i.track, i.frp,
		       i.day_night, i.confidence, i.version, i.created_at
		FROM fire_incidents i
		JOIN fire_locations l ON l.id = i.location_id
		JOIN sensors se ON se.id = i.sensor_id
		WHERE i.acquired_at >= $1 AND i.acquired_at <= $2`
	args := []any{from, to}
	if locality != "" {
		query += ` AND lower(l.locality) = lower($3)`
		args = append(args, locality)
	}
	query += ` ORDER BY i.acquired_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		if err := rows.Scan(
			&inc.ID, &inc.Latitude, &inc.Longitude, &inc.Locality, &inc.State,
			&inc.Source, &inc.Satellite, &inc.Instrument,
			&inc.AcquiredAt, &inc.Brightness, &inc.Scan, &inc.Track, &inc.FRP,
			&inc.DayNight, &inc.Confidence, &inc.Version, &inc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}
