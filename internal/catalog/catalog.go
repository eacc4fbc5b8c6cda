// Package catalog holds the static reference data the pipeline is configured
// with: the locality index, the sensor source list, and the default bounding
// region. All of it is loaded once at process start and immutable afterwards.
package catalog

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
)

//go:embed localities.csv
var localitiesCSV string

// Source is one upstream hotspot feed.
type Source struct {
	ID   string // upstream source identifier used in fetch requests
	Name string
}

// Sources returns the sensor feeds queried on every pipeline run.
func Sources() []Source {
	return []Source{
		{ID: "MODIS_NRT", Name: "MODIS (Terra/Aqua) near-real-time"},
		{ID: "VIIRS_SNPP_NRT", Name: "VIIRS (Suomi-NPP) near-real-time"},
		{ID: "VIIRS_NOAA20_NRT", Name: "VIIRS (NOAA-20) near-real-time"},
	}
}

// DefaultRegion is the bounding box of the area of interest, the state of
// Maranhão with a small margin.
func DefaultRegion() domain.Region {
	return domain.Region{North: -1.0, South: -10.3, East: -41.7, West: -48.8}
}

// Localities parses the embedded locality reference set. A malformed or
// empty embed is a build problem surfaced as a startup error.
func Localities() ([]domain.Locality, error) {
	lines := strings.Split(strings.TrimSpace(localitiesCSV), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("localities: embedded catalog is empty")
	}

	localities := make([]domain.Locality, 0, len(lines)-1)
	for i, line := range lines[1:] {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("localities: row %d has %d fields, want 4", i+2, len(fields))
		}
		lat, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("localities: row %d latitude: %w", i+2, err)
		}
		lon, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("localities: row %d longitude: %w", i+2, err)
		}
		localities = append(localities, domain.Locality{
			Name:      fields[0],
			State:     fields[1],
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return localities, nil
}
