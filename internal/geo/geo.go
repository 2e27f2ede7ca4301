// Package geo holds the geodesic math for the tracking engine: great-circle
// distance, initial bearing and display formatting. Everything here is pure:
// no error cases, no I/O.
package geo

import (
	"fmt"
	"math"

	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// EarthRadiusMetres is the spherical-Earth approximation radius.
const EarthRadiusMetres = 6371000.0

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the haversine great-circle distance between two points in
// metres. Symmetric, and zero for identical points.
func Distance(a, b model.GeoPoint) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMetres * c
}

// Bearing returns the initial forward azimuth from a toward b, in degrees
// clockwise from true north, normalized to [0, 360).
func Bearing(a, b model.GeoPoint) float64 {
	dLng := radians(b.Longitude - a.Longitude)

	y := math.Sin(dLng) * math.Cos(radians(b.Latitude))
	x := math.Cos(radians(a.Latitude))*math.Sin(radians(b.Latitude)) -
		math.Sin(radians(a.Latitude))*math.Cos(radians(b.Latitude))*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// FormatDistance renders a distance for display: whole metres below 1 km,
// kilometres to one decimal place from 1 km up.
func FormatDistance(metres float64) string {
	if metres < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(metres)))
	}
	return fmt.Sprintf("%.1fkm", metres/1000)
}
