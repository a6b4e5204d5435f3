package domain

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusM is the WGS 84 semi-major axis used by EPSG:4087.
const EarthRadiusM = 6378137.0

// Project converts WGS 84 longitude/latitude degrees into EPSG:4087 (World
// Equidistant Cylindrical) meters.
func Project(lon, lat float64) orb.Point {
	return orb.Point{
		EarthRadiusM * lon * math.Pi / 180,
		EarthRadiusM * lat * math.Pi / 180,
	}
}

// Unproject is the inverse of Project.
func Unproject(p orb.Point) (lon, lat float64) {
	return p.X() / EarthRadiusM * 180 / math.Pi, p.Y() / EarthRadiusM * 180 / math.Pi
}

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
