// Package geo contains pure geographic computation helpers used by pricing and matching.
package geo

import (
	"math"

	"ridedispatch/internal/types"
)

const (
	earthRadiusKm = 6371.0
	// AverageSpeedKmh is the city speed assumed for travel-time estimates.
	AverageSpeedKmh = 40.0
)

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees, rounded to two decimals.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return types.Round2(earthRadiusKm * c)
}

// Between is DistanceKm for two points.
func Between(a, b types.Point) float64 {
	return DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// ETAMinutes estimates whole minutes needed to drive distanceKm at AverageSpeedKmh.
func ETAMinutes(distanceKm float64) int {
	return int(math.Ceil(distanceKm / AverageSpeedKmh * 60))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
