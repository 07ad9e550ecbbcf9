package assignment

import (
	"math"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

const earthRadiusKM = 6371.0

// DistanceKM is the great-circle distance between two points.
func DistanceKM(a, b models.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
