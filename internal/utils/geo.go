package utils

import (
	"fmt"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

func IsValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// CalculateCenter returns the unweighted centroid of points.
func CalculateCenter(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var totalLat, totalLng float64
	for _, point := range points {
		totalLat += point.Lat
		totalLng += point.Lng
	}

	return Point{
		Lat: totalLat / float64(len(points)),
		Lng: totalLng / float64(len(points)),
	}
}

// FormatCoordinates is the address used when reverse geocoding fails.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}
