package domain

import "context"

// Address holds the settlement-level fields of a reverse-geocoding response.
// Providers populate whichever administrative level applies to the point.
type Address struct {
	City         string
	Town         string
	Village      string
	Municipality string
	State        string
}

// Settlement returns the most specific non-empty settlement name.
func (a Address) Settlement() string {
	for _, name := range []string{a.City, a.Town, a.Village, a.Municipality} {
		if name != "" {
			return name
		}
	}
	return ""
}

// ReverseGeocoder converts a coordinate into an administrative address.
// Implementations are best-effort, not authoritative: callers treat any
// error or empty result as "no match" and fall back to the locality index.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Address, error)
}
