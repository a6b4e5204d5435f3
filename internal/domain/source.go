package domain

import (
	"context"

	"github.com/paulmach/orb/geojson"
)

// QuakeSource fetches raw earthquake features for a query window.
type QuakeSource interface {
	FetchQuakes(ctx context.Context, q QuakeQuery) ([]RawQuake, error)
}

// CityLoader loads populated places described by a source descriptor.
// Implementations own any network or filesystem access.
type CityLoader interface {
	LoadCities(ctx context.Context, src CitySource) (*geojson.FeatureCollection, error)
}
