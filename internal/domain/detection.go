package domain

import "time"

// Detection is the canonical in-memory form of one hotspot observation,
// normalized from a raw source row but not yet resolved to a locality.
// It is never persisted as-is.
type Detection struct {
	Latitude   float64
	Longitude  float64
	AcquiredAt time.Time
	Brightness float64
	Scan       float64
	Track      float64
	Satellite  string
	Instrument string
	// Confidence arrives as a number (MODIS) or a letter class (VIIRS).
	// The raw string is kept; ConfidenceValue is the parse-or-zero coercion.
	Confidence      string
	ConfidenceValue float64
	Version         string
	FRP             float64
	DayNight        string
}

// ResolvedDetection pairs a detection with the locality it was attributed to.
type ResolvedDetection struct {
	Detection
	Locality string
	State    string
}

// Locality is one entry of the static reference index: a named
// administrative area with its reference coordinate.
type Locality struct {
	Name      string
	State     string
	Latitude  float64
	Longitude float64
}

// Region is the rectangular latitude/longitude area of interest.
type Region struct {
	North float64
	South float64
	East  float64
	West  float64
}

// Contains reports whether the coordinate falls inside the region (inclusive).
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.South && lat <= r.North && lon >= r.West && lon <= r.East
}

// DateRange is a whole-day window, inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to midnight UTC.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: startOfDay(start), End: startOfDay(end)}
}

// Days returns the number of whole days covered by the range, counting both
// endpoints. A single-day range has Days() == 1; an inverted range returns 0.
func (d DateRange) Days() int {
	if d.End.Before(d.Start) {
		return 0
	}
	return int(d.End.Sub(d.Start)/(24*time.Hour)) + 1
}

// ContainsDate reports whether the timestamp's UTC date falls in the range.
func (d DateRange) ContainsDate(t time.Time) bool {
	day := startOfDay(t)
	return !day.Before(d.Start) && !day.After(d.End)
}

func startOfDay(t time.Time) time.Time {
	y, m, day := t.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// Incident is the read-model row returned by the query surface: a persisted
// fire incident joined to its location and sensor dimensions.
type Incident struct {
	ID         int64     `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Locality   string    `json:"locality"`
	State      string    `json:"state"`
	Source     string    `json:"source"`
	Satellite  string    `json:"satellite"`
	Instrument string    `json:"instrument"`
	AcquiredAt time.Time `json:"acquired_at"`
	Brightness float64   `json:"brightness"`
	Scan       float64   `json:"scan"`
	Track      float64   `json:"track"`
	FRP        float64   `json:"frp"`
	DayNight   string    `json:"day_night"`
	Confidence string    `json:"confidence"`
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}
