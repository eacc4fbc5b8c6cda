// Package domain models satellite wildfire hotspot detections.
//
// # Data Source
//
// Detections originate from the NASA FIRMS area API, which serves
// near-real-time thermal anomaly records per sensor source as comma-delimited
// text with a header row. One source is queried per satellite/instrument feed
// (MODIS on Terra/Aqua, VIIRS on Suomi-NPP and NOAA-20); the upstream service
// limits area queries to a 10-day lookback window.
//
// # Upstream Conventions
//
// Coordinates:
//
//	WGS-84 decimal degrees in "latitude"/"longitude" columns. The area query
//	is coarse, so rows outside the configured bounding region are expected
//	and dropped during normalization, not treated as errors.
//
// Acquisition time:
//
//	"acq_date" is YYYY-MM-DD, "acq_time" is HHMM in 24-hour UTC notation with
//	leading zeros sometimes missing ("130" → 01:30). A row without a parseable
//	date is dropped, since the dedup key needs a timestamp. A bad time falls back
//	to midnight of the acquisition date.
//
// Brightness:
//
//	Column name is instrument-specific: "brightness" (MODIS, Kelvin) or
//	"bright_ti4" (VIIRS I-4 channel). Normalization selects whichever the
//	payload carries.
//
// Confidence:
//
//	MODIS reports 0–100 integers; VIIRS reports the letter classes "l"/"n"/"h".
//	Both are unreliable upstream, so the raw string is kept and the numeric
//	coercion defaults to zero instead of rejecting the row.
//
// # Locality Resolution
//
// A detection is attributed to a named locality by reverse geocoding its
// coordinate and matching the returned settlement name (city, town, village,
// or municipality) case-insensitively against the static locality index.
// When the geocoder fails, times out, or returns no indexed name, the
// locality with the minimum Euclidean distance in raw degrees wins. The
// fallback never fails on a non-empty index, so every in-region detection
// resolves to some locality.
package domain
