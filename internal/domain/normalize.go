package domain

import (
	"bufio"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// SkipReason labels why a raw row was dropped during normalization.
type SkipReason string

const (
	SkipMalformedRow  SkipReason = "malformed_row"
	SkipBadTimestamp  SkipReason = "bad_timestamp"
	SkipOutsideWindow SkipReason = "outside_window"
	SkipOutsideRegion SkipReason = "outside_region"
)

// columns every payload must carry for a row to be usable at all.
var requiredColumns = []string{"latitude", "longitude", "acq_date", "acq_time"}

// header maps lower-cased column names to their positions in the payload.
type header map[string]int

// ParseDetections normalizes a raw delimited payload into canonical
// detections. The header row is validated eagerly; data rows are consumed
// lazily by the returned sequence.
//
// Rows whose field count does not match the header, whose acquisition date
// cannot be parsed, or whose date/coordinates fall outside the requested
// window and region are skipped, not surfaced as errors: the upstream area
// query is coarse and such rows are expected noise. Each skip is reported to
// onSkip when non-nil. Numeric measurement fields coerce to zero on parse
// failure rather than dropping an otherwise-valid detection.
func ParseDetections(payload string, window DateRange, region Region, onSkip func(SkipReason)) (iter.Seq[Detection], error) {
	scanner := bufio.NewScanner(strings.NewReader(payload))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("parse detections: empty payload")
	}
	hdr, err := parseHeader(scanner.Text())
	if err != nil {
		return nil, fmt.Errorf("parse detections: %w", err)
	}

	skip := onSkip
	if skip == nil {
		skip = func(SkipReason) {}
	}

	return func(yield func(Detection) bool) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			fields := strings.Split(line, ",")
			if len(fields) != len(hdr) {
				skip(SkipMalformedRow)
				continue
			}

			acquiredAt, ok := parseAcquiredAt(hdr.get(fields, "acq_date"), hdr.get(fields, "acq_time"))
			if !ok {
				skip(SkipBadTimestamp)
				continue
			}
			if !window.ContainsDate(acquiredAt) {
				skip(SkipOutsideWindow)
				continue
			}

			lat := parseFloatOrZero(hdr.get(fields, "latitude"))
			lon := parseFloatOrZero(hdr.get(fields, "longitude"))
			if !region.Contains(lat, lon) {
				skip(SkipOutsideRegion)
				continue
			}

			confidence := hdr.get(fields, "confidence")
			det := Detection{
				Latitude:        lat,
				Longitude:       lon,
				AcquiredAt:      acquiredAt,
				Brightness:      parseFloatOrZero(brightnessField(hdr, fields)),
				Scan:            parseFloatOrZero(hdr.get(fields, "scan")),
				Track:           parseFloatOrZero(hdr.get(fields, "track")),
				Satellite:       hdr.get(fields, "satellite"),
				Instrument:      hdr.get(fields, "instrument"),
				Confidence:      confidence,
				ConfidenceValue: parseFloatOrZero(confidence),
				Version:         hdr.get(fields, "version"),
				FRP:             parseFloatOrZero(hdr.get(fields, "frp")),
				DayNight:        hdr.get(fields, "daynight"),
			}
			if !yield(det) {
				return
			}
		}
	}, nil
}

func parseHeader(line string) (header, error) {
	names := strings.Split(strings.TrimSpace(line), ",")
	hdr := make(header, len(names))
	for i, name := range names {
		hdr[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := hdr[required]; !ok {
			return nil, fmt.Errorf("header missing column %q", required)
		}
	}
	return hdr, nil
}

// get returns the named field, or "" when the payload lacks the column.
func (h header) get(fields []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// brightnessField selects the brightness column, which is instrument-specific
// upstream: "brightness" for MODIS, "bright_ti4" for VIIRS.
func brightnessField(hdr header, fields []string) string {
	if v := hdr.get(fields, "brightness"); v != "" {
		return v
	}
	return hdr.get(fields, "bright_ti4")
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseAcquiredAt combines an acquisition date (YYYY-MM-DD) with an HHMM time
// string (e.g. "130" → 01:30) into a UTC timestamp. A bad date makes the row
// unusable (the dedup key needs a timestamp); a bad time falls back to
// midnight of the acquisition date.
func parseAcquiredAt(dateStr, timeStr string) (time.Time, bool) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(dateStr))
	if err != nil {
		return time.Time{}, false
	}

	hhmm := strings.TrimSpace(timeStr)
	for len(hhmm) > 0 && len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return day, true
	}

	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return day, true
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, mins, 0, 0, time.UTC), true
}
