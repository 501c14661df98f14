package types

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// LatLng is a geographic position in WGS84 (EPSG:4326).
type LatLng struct {
	Lat float64 // Latitude in degrees (-90..90)
	Lon float64 // Longitude in degrees (-180..180)
}

// NewLatLng creates a LatLng from latitude and longitude.
func NewLatLng(lat, lon float64) LatLng {
	return LatLng{Lat: lat, Lon: lon}
}

// Validate reports whether the position is a finite WGS84 coordinate.
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("coordinate %s is not finite", p)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %.6f out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %.6f out of range [-180, 180]", p.Lon)
	}
	return nil
}

// Point returns the position as an orb.Point (lon, lat).
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// String returns a human-readable representation of the position
func (p LatLng) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}
