// Package domain models earthquake events and populated places for exposure
// analysis.
//
// # Data Sources
//
// Earthquakes come from the USGS FDSN event web service at
// https://earthquake.usgs.gov/fdsnws/event/1/query, requested as GeoJSON with
// a start time and minimum magnitude. Each feature carries:
//
//	properties.mag    magnitude (nullable upstream)
//	properties.place  human-readable label, e.g. "12 km SSW of Hualien City, Taiwan"
//	properties.time   origin time in unix milliseconds
//	geometry          Point [lon, lat, depth_km]
//
// Cities come from the Natural Earth populated places dataset. The loader
// keeps places above a population threshold and renames the columns it reads:
//
//	name     → NAME
//	pop_max  → POP_MAX
//	ADM0NAME   country label, "Unknown" when absent
//
// # Projection
//
// Distances are computed in EPSG:4087 (World Equidistant Cylindrical) meters:
//
//	x = R · lon_rad
//	y = R · lat_rad      R = 6378137 m
//
// The projection preserves distance along meridians and the equator only;
// east-west distances away from the equator are overstated by 1/cos(lat).
// All spatial queries and radii are expressed in these meters.
//
// # Row Failures
//
// Parsing never aborts a batch. A row with a missing geometry, magnitude or
// name yields a [MissingFieldError]; a NaN or infinite value yields
// [ErrNonFinite]. Both are wrapped in a [RowError] and returned alongside the
// valid rows so callers can count and log them.
package domain
