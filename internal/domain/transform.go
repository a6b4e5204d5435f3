package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultCountry is used when a city carries no country label.
const DefaultCountry = "Unknown"

// ParseQuakeFeature validates a raw USGS feature and projects it into the
// metric plane. Depth is the third coordinate, or 0 when absent.
func ParseQuakeFeature(raw RawQuake) (EarthquakeEvent, error) {
	if raw.Geometry == nil || len(raw.Geometry.Coordinates) < 2 {
		return EarthquakeEvent{}, &MissingFieldError{Field: "geometry"}
	}
	if raw.Properties.Mag == nil {
		return EarthquakeEvent{}, &MissingFieldError{Field: "mag"}
	}

	coords := raw.Geometry.Coordinates
	lon, lat := coords[0], coords[1]
	depth := 0.0
	if len(coords) > 2 {
		depth = coords[2]
	}
	mag := *raw.Properties.Mag

	if !IsFinite(lon, lat, depth, mag) {
		return EarthquakeEvent{}, fmt.Errorf("parse quake: %w", ErrNonFinite)
	}
	// Events above the reference ellipsoid report small negative depths.
	if depth < 0 {
		depth = 0
	}

	var at time.Time
	if raw.Properties.Time != 0 {
		at = time.UnixMilli(raw.Properties.Time).UTC()
	}

	return EarthquakeEvent{
		ID:        raw.ID,
		Place:     raw.Properties.Place,
		Magnitude: mag,
		DepthKM:   depth,
		Time:      at,
		Lon:       lon,
		Lat:       lat,
		Position:  Project(lon, lat),
	}, nil
}

// ParseQuakes parses every feature, collecting failures instead of stopping.
// Input order is preserved among the valid events.
func ParseQuakes(raws []RawQuake) ([]EarthquakeEvent, []RowError) {
	events := make([]EarthquakeEvent, 0, len(raws))
	var rowErrs []RowError
	for i, raw := range raws {
		ev, err := ParseQuakeFeature(raw)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Kind: KindQuake, Key: rowKey(raw.ID, i), Err: err})
			continue
		}
		events = append(events, ev)
	}
	return events, rowErrs
}

// ParseCityFeature converts a Natural Earth populated place into a City.
// Both the upper-case and lower-case Natural Earth column names are accepted.
func ParseCityFeature(f *geojson.Feature) (City, error) {
	if f == nil {
		return City{}, &MissingFieldError{Field: "geometry"}
	}
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return City{}, &MissingFieldError{Field: "geometry"}
	}

	props := f.Properties
	name := strings.TrimSpace(props.MustString("NAME", props.MustString("name", "")))
	if name == "" {
		return City{}, &MissingFieldError{Field: "name"}
	}

	lon, lat := pt.Lon(), pt.Lat()
	if !IsFinite(lon, lat) {
		return City{}, fmt.Errorf("parse city %q: %w", name, ErrNonFinite)
	}

	pop := props.MustFloat64("POP_MAX", props.MustFloat64("pop_max", 0))
	if !IsFinite(pop) || pop < 0 {
		pop = 0
	}

	country := strings.TrimSpace(props.MustString("ADM0NAME", DefaultCountry))
	if country == "" {
		country = DefaultCountry
	}

	return City{
		Name:       name,
		Population: pop,
		Country:    country,
		Lon:        lon,
		Lat:        lat,
		Position:   Project(lon, lat),
	}, nil
}

// ParseCities parses every feature of a collection, collecting failures.
func ParseCities(fc *geojson.FeatureCollection) ([]City, []RowError) {
	if fc == nil {
		return nil, nil
	}
	cities := make([]City, 0, len(fc.Features))
	var rowErrs []RowError
	for i, f := range fc.Features {
		c, err := ParseCityFeature(f)
		if err != nil {
			key := ""
			if f != nil {
				key = f.Properties.MustString("NAME", f.Properties.MustString("name", ""))
			}
			rowErrs = append(rowErrs, RowError{Kind: KindCity, Key: rowKey(key, i), Err: err})
			continue
		}
		cities = append(cities, c)
	}
	return cities, rowErrs
}

// rowKey falls back to the row position when no identifier is available.
func rowKey(id string, i int) string {
	if id != "" {
		return id
	}
	return "#" + strconv.Itoa(i)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
