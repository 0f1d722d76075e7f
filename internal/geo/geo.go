// Package geo provides straight-line distance and travel time estimates.
//
// Distances use the haversine formula on WGS-84 coordinates. Durations assume
// a constant average urban delivery speed and are only used when no routing
// provider result is available.
package geo

import (
	"delivery-coordination-service/internal/domain"
	"math"
)

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// AverageSpeedKmph is 35 mph expressed in km/h.
	AverageSpeedKmph = 35 * 1.609344
)

// DistanceKm returns the great-circle distance between two points in kilometers.
func DistanceKm(originLat, originLng, destLat, destLng float64) float64 {
	dLat := degToRad(destLat - originLat)
	dLng := degToRad(destLng - originLng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(originLat))*math.Cos(degToRad(destLat))*sinLng*sinLng

	// Guard against rounding pushing h just above 1 for antipodal points.
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Between is DistanceKm for domain coordinates.
func Between(a, b domain.Coordinates) float64 {
	return DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// EstimateDurationSeconds converts a distance into travel seconds at
// AverageSpeedKmph, rounded to the nearest second.
func EstimateDurationSeconds(distanceKm float64) int {
	return int(math.Round(distanceKm / AverageSpeedKmph * 3600))
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
