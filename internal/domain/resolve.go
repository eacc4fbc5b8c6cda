package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrOutsideRegion marks a coordinate outside the configured area of
// interest. Checked before any network call.
var ErrOutsideRegion = errors.New("coordinate outside region of interest")

// LocalityIndex is the static set of known localities, loaded once at
// process start and immutable afterwards.
type LocalityIndex struct {
	localities []Locality
	byName     map[string]Locality
}

// NewLocalityIndex builds an index over the given localities. An empty set
// is a configuration error: the nearest-neighbor fallback could never
// produce a result.
func NewLocalityIndex(localities []Locality) (*LocalityIndex, error) {
	if len(localities) == 0 {
		return nil, errors.New("locality index: no localities")
	}
	byName := make(map[string]Locality, len(localities))
	for _, l := range localities {
		byName[strings.ToLower(l.Name)] = l
	}
	return &LocalityIndex{localities: localities, byName: byName}, nil
}

// Len returns the number of indexed localities.
func (ix *LocalityIndex) Len() int { return len(ix.localities) }

// Lookup finds a locality by name, case-insensitively.
func (ix *LocalityIndex) Lookup(name string) (Locality, bool) {
	l, ok := ix.byName[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// Nearest returns the locality whose reference coordinate has the minimum
// Euclidean distance in raw degrees to the given point. No geodesic
// correction: at municipal scale the ranking is the same and the arithmetic
// stays trivial. A linear scan is fine at the catalog's size.
func (ix *LocalityIndex) Nearest(lat, lon float64) Locality {
	best := ix.localities[0]
	bestDist := squaredDistance(lat, lon, best.Latitude, best.Longitude)
	for _, l := range ix.localities[1:] {
		if d := squaredDistance(lat, lon, l.Latitude, l.Longitude); d < bestDist {
			best, bestDist = l, d
		}
	}
	return best
}

func squaredDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat1 - lat2
	dLon := lon1 - lon2
	return dLat*dLat + dLon*dLon
}

// ResolvedLocality is the outcome of locality resolution. Fallback reports
// whether the nearest-neighbor path produced it instead of the geocoder.
type ResolvedLocality struct {
	Name     string
	State    string
	Fallback bool
}

// Resolver maps coordinates to localities: an external reverse geocoder
// first, the index's nearest neighbor as a fallback that never fails.
type Resolver struct {
	index    *LocalityIndex
	region   Region
	geocoder ReverseGeocoder
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil geocoder disables the primary path
// entirely; every in-region coordinate then resolves via nearest neighbor.
func NewResolver(index *LocalityIndex, region Region, geocoder ReverseGeocoder, logger *slog.Logger) (*Resolver, error) {
	if index == nil || index.Len() == 0 {
		return nil, fmt.Errorf("resolver: empty locality index")
	}
	return &Resolver{index: index, region: region, geocoder: geocoder, logger: logger}, nil
}

// Resolve returns the locality for a coordinate, or ErrOutsideRegion when
// the point lies outside the area of interest. Geocoder failures of any
// kind degrade to the fallback rather than propagating.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (ResolvedLocality, error) {
	if !r.region.Contains(lat, lon) {
		return ResolvedLocality{}, ErrOutsideRegion
	}

	if r.geocoder != nil {
		addr, err := r.geocoder.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			r.logger.Warn("reverse geocoding failed, using nearest locality",
				"lat", lat, "lon", lon, "error", err)
		} else if name := addr.Settlement(); name != "" {
			if l, ok := r.index.Lookup(name); ok {
				return ResolvedLocality{Name: l.Name, State: l.State}, nil
			}
		}
	}

	nearest := r.index.Nearest(lat, lon)
	return ResolvedLocality{Name: nearest.Name, State: nearest.State, Fallback: true}, nil
}
