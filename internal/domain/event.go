package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// RawQuake is a single feature from the USGS FDSN event service GeoJSON
// response. Magnitude and geometry are nullable upstream.
type RawQuake struct {
	ID         string          `json:"id"`
	Properties QuakeProperties `json:"properties"`
	Geometry   *QuakeGeometry  `json:"geometry"`
}

// QuakeProperties holds the subset of USGS feature properties the service reads.
type QuakeProperties struct {
	Mag   *float64 `json:"mag"`
	Place string   `json:"place"`
	Time  int64    `json:"time"` // unix millis
	Title string   `json:"title"`
}

// QuakeGeometry is a GeoJSON point with an optional third (depth) ordinate.
type QuakeGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth_km]
}

// EarthquakeEvent is a validated seismic event with both geographic and
// projected coordinates. Position is in EPSG:4087 meters.
type EarthquakeEvent struct {
	ID        string    `json:"id"`
	Place     string    `json:"place"`
	Magnitude float64   `json:"magnitude"`
	DepthKM   float64   `json:"depth_km"`
	Time      time.Time `json:"time"`
	Lon       float64   `json:"lon"`
	Lat       float64   `json:"lat"`
	Position  orb.Point `json:"-"`
}

// City is a populated place. Name is the join key for exposure results and
// must be unique within one analysis run.
type City struct {
	Name       string    `json:"name"`
	Population float64   `json:"population"`
	Country    string    `json:"country"`
	Lon        float64   `json:"lon"`
	Lat        float64   `json:"lat"`
	Position   orb.Point `json:"-"`
}

// QuakeQuery selects events from the upstream feed.
type QuakeQuery struct {
	DaysBack     int
	MinMagnitude float64
}

// StartTime returns the beginning of the query window relative to the
// package clock.
func (q QuakeQuery) StartTime() time.Time {
	return Now().AddDate(0, 0, -q.DaysBack)
}

// CitySource describes where and how to load populated places.
type CitySource struct {
	URL           string
	MinPopulation float64
	CacheFile     string
}

// Key identifies the source for caching purposes.
func (s CitySource) Key() string {
	return s.URL + "|" + s.CacheFile + "|" + formatFloat(s.MinPopulation)
}
