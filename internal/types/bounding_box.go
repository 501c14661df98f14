package types

import (
	"fmt"

	"github.com/paulmach/orb"
)

// BoundingBox represents a geographic bounding box in WGS84 (EPSG:4326)
type BoundingBox struct {
	MinLon float64 // Western edge (degrees)
	MinLat float64 // Southern edge (degrees)
	MaxLon float64 // Eastern edge (degrees)
	MaxLat float64 // Northern edge (degrees)
}

// BoundingBoxFromBound converts an orb.Bound (lon/lat) to a BoundingBox.
func BoundingBoxFromBound(b orb.Bound) BoundingBox {
	return BoundingBox{
		MinLon: b.Min.Lon(),
		MinLat: b.Min.Lat(),
		MaxLon: b.Max.Lon(),
		MaxLat: b.Max.Lat(),
	}
}

// BoundingBoxFromArray converts [minLon, minLat, maxLon, maxLat] to a BoundingBox.
func BoundingBoxFromArray(a [4]float64) BoundingBox {
	return BoundingBox{MinLon: a[0], MinLat: a[1], MaxLon: a[2], MaxLat: a[3]}
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Array returns [minLon, minLat, maxLon, maxLat].
func (b BoundingBox) Array() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// Validate checks ordering and WGS84 range.
func (b BoundingBox) Validate() error {
	if err := NewLatLng(b.MinLat, b.MinLon).Validate(); err != nil {
		return fmt.Errorf("south-west corner: %w", err)
	}
	if err := NewLatLng(b.MaxLat, b.MaxLon).Validate(); err != nil {
		return fmt.Errorf("north-east corner: %w", err)
	}
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", b.MinLat, b.MaxLat)
	}
	return nil
}

// ExpandByFraction grows the box on every side by fraction of its width/height.
func (b BoundingBox) ExpandByFraction(fraction float64) BoundingBox {
	if fraction <= 0 {
		return b
	}
	dLon := b.Width() * fraction
	dLat := b.Height() * fraction
	return BoundingBox{
		MinLon: b.MinLon - dLon,
		MinLat: b.MinLat - dLat,
		MaxLon: b.MaxLon + dLon,
		MaxLat: b.MaxLat + dLat,
	}
}

// Contains reports whether p lies inside the box (edges included).
func (b BoundingBox) Contains(p LatLng) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// String returns a human-readable representation of the bounding box
func (b BoundingBox) String() string {
	return fmt.Sprintf("bbox(%.6f,%.6f,%.6f,%.6f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Center returns the center point of the bounding box
func (b BoundingBox) Center() LatLng {
	return LatLng{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Width returns the width of the bounding box in degrees
func (b BoundingBox) Width() float64 {
	return b.MaxLon - b.MinLon
}

// Height returns the height of the bounding box in degrees
func (b BoundingBox) Height() float64 {
	return b.MaxLat - b.MinLat
}
