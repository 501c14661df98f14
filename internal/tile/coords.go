package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level tile math is performed for.
const MaxZoom = 22

// Coords represents a tile coordinate in the Web Mercator tile system (z/x/y)
type Coords struct {
	Z uint32 // Zoom level (0-22)
	X uint32 // X coordinate (column)
	Y uint32 // Y coordinate (row)
}

// NewCoords creates a new Coords from zoom, x, y values
func NewCoords(z, x, y uint32) Coords {
	return Coords{Z: z, X: x, Y: y}
}

// String returns the tile coordinate as "z/x/y"
func (c Coords) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Valid reports whether x and y fall inside the tile grid of zoom z.
func (c Coords) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	n := uint32(1) << c.Z
	return c.X < n && c.Y < n
}

// Tile returns the maptile.Tile for this coordinate
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// TMSY returns the row in TMS numbering (origin bottom-left), as used by MBTiles.
func (c Coords) TMSY() uint32 {
	return (uint32(1) << c.Z) - 1 - c.Y
}

// Bounds returns the geographic bounding box for this tile in WGS84 (EPSG:4326)
// Returns [minLon, minLat, maxLon, maxLat]
func (c Coords) Bounds() [4]float64 {
	bound := c.Tile().Bound()

	return [4]float64{
		bound.Min.Lon(),
		bound.Min.Lat(),
		bound.Max.Lon(),
		bound.Max.Lat(),
	}
}

// ParseCoords parses "z/x/y" into Coords and checks it against the tile grid.
func ParseCoords(s string) (Coords, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Coords{}, fmt.Errorf("invalid tile coordinate format: %s", s)
	}

	var vals [3]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Coords{}, fmt.Errorf("invalid tile coordinate format: %s", s)
		}
		vals[i] = uint32(v)
	}

	c := NewCoords(vals[0], vals[1], vals[2])
	if !c.Valid() {
		return Coords{}, fmt.Errorf("tile %s outside the grid", s)
	}
	return c, nil
}

// Expand substitutes {z}, {x}, {y}, {-y} and {s} in a tile URL template.
// subdomain replaces {s}; pass "" when the template has none.
func Expand(template string, c Coords, subdomain string) string {
	r := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(c.Z), 10),
		"{x}", strconv.FormatUint(uint64(c.X), 10),
		"{y}", strconv.FormatUint(uint64(c.Y), 10),
		"{-y}", strconv.FormatUint(uint64(c.TMSY()), 10),
		"{s}", subdomain,
		"{r}", "",
	)
	return r.Replace(template)
}

// TileCount returns the number of tiles in a bounding box across a zoom range.
// bbox: [minLon, minLat, maxLon, maxLat] in WGS84
func TileCount(bbox [4]float64, zoomMin, zoomMax int) int {
	minPoint := orb.Point{bbox[0], bbox[1]}
	maxPoint := orb.Point{bbox[2], bbox[3]}

	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		cols, rows := span(minPoint, maxPoint, maptile.Zoom(z))
		count += cols * rows
	}

	return count
}

// FitZoom returns the deepest zoom in [minZoom, maxZoom] at which bbox fits into a
// viewport of cols x rows tiles. It returns minZoom if nothing fits.
func FitZoom(bbox [4]float64, cols, rows, minZoom, maxZoom int) int {
	minPoint := orb.Point{bbox[0], bbox[1]}
	maxPoint := orb.Point{bbox[2], bbox[3]}

	best := minZoom
	for z := minZoom; z <= maxZoom; z++ {
		c, r := span(minPoint, maxPoint, maptile.Zoom(z))
		if c > cols || r > rows {
			break
		}
		best = z
	}
	return best
}

// Cover lists every tile touching bbox for each zoom in [zoomMin, zoomMax],
// ordered by zoom, then column, then row.
func Cover(bbox [4]float64, zoomMin, zoomMax int) []Coords {
	minPoint := orb.Point{bbox[0], bbox[1]}
	maxPoint := orb.Point{bbox[2], bbox[3]}

	tiles := make([]Coords, 0, TileCount(bbox, zoomMin, zoomMax))
	for z := zoomMin; z <= zoomMax; z++ {
		minX, minY, maxX, maxY := grid(minPoint, maxPoint, maptile.Zoom(z))
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, NewCoords(uint32(z), x, y))
			}
		}
	}
	return tiles
}

func span(minPoint, maxPoint orb.Point, zoom maptile.Zoom) (int, int) {
	minX, minY, maxX, maxY := grid(minPoint, maxPoint, zoom)
	return int(maxX - minX + 1), int(maxY - minY + 1)
}

func grid(minPoint, maxPoint orb.Point, zoom maptile.Zoom) (uint32, uint32, uint32, uint32) {
	minTile := maptile.At(minPoint, zoom)
	maxTile := maptile.At(maxPoint, zoom)

	// Y is inverted relative to latitude
	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}

	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	return minX, minY, maxX, maxY
}
