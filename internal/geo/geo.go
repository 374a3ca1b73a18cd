package geo

import (
	"math"

	"github.com/example/carpool-match/internal/models"
)

// MilesPerDegree is a rough degrees-to-miles factor at the service's
// operating latitude. It is only good for same-metro proximity.
const MilesPerDegree = 88.0

// Euclidean distance between two coordinates in degrees.
func Euclidean(a, b models.Coord) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// ApproxMiles converts the planar degree distance to miles. Not geodesic.
func ApproxMiles(a, b models.Coord) float64 {
	return Euclidean(a, b) * MilesPerDegree
}
