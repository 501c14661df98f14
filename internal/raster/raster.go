// Package raster paints lon/lat vector features onto Web Mercator pixel canvases.
package raster

import (
	"image"
	"image/draw"
	"math"

	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

type Renderer struct {
	zoom     int
	tileSize int
	offsetX  int // global pixel space
	offsetY  int // global pixel space
	canvasW  int
	canvasH  int
}

// NewRenderer creates a renderer that maps lon/lat to a pixel canvas.
// offsetX/offsetY are the top-left pixel of the canvas in global pixel coordinates at the given zoom.
func NewRenderer(zoom int, tileSize int, canvasW int, canvasH int, offsetX int, offsetY int) *Renderer {
	return &Renderer{
		zoom:     zoom,
		tileSize: tileSize,
		offsetX:  offsetX,
		offsetY:  offsetY,
		canvasW:  canvasW,
		canvasH:  canvasH,
	}
}

// ForTile returns a renderer whose canvas is exactly tile c.
func ForTile(c tile.Coords, tileSize int) *Renderer {
	return NewRenderer(int(c.Z), tileSize, tileSize, tileSize, int(c.X)*tileSize, int(c.Y)*tileSize)
}

// Canvas allocates a transparent image of the renderer's size.
func (r *Renderer) Canvas() *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, r.canvasW, r.canvasH))
}

// Draw paints g onto dst. Polygons are filled then outlined, lines are
// stroked and points become circles of st.Radius.
func (r *Renderer) Draw(dst *image.NRGBA, g orb.Geometry, st Style) {
	switch g := g.(type) {
	case orb.Polygon:
		r.drawPolygon(dst, g, st)
	case orb.MultiPolygon:
		for _, p := range g {
			r.drawPolygon(dst, p, st)
		}
	case orb.Ring:
		r.drawPolygon(dst, orb.Polygon{g}, st)
	case orb.Bound:
		r.drawPolygon(dst, g.ToPolygon(), st)
	case orb.LineString:
		r.strokeLines(dst, []orb.LineString{g}, st)
	case orb.MultiLineString:
		r.strokeLines(dst, g, st)
	case orb.Point:
		r.drawCircle(dst, g, st)
	case orb.MultiPoint:
		for _, p := range g {
			r.drawCircle(dst, p, st)
		}
	case orb.Collection:
		for _, child := range g {
			r.Draw(dst, child, st)
		}
	}
}

func (r *Renderer) drawPolygon(dst *image.NRGBA, poly orb.Polygon, st Style) {
	if len(poly) == 0 {
		return
	}
	if st.Fill.A > 0 {
		r.fillPolygon(dst, poly, st)
	}
	if st.Stroke.A > 0 && st.Weight > 0 {
		rings := make([]orb.LineString, 0, len(poly))
		for _, ring := range poly {
			rings = append(rings, orb.LineString(ring))
		}
		r.strokeLines(dst, rings, st)
	}
}

func (r *Renderer) fillPolygon(dst *image.NRGBA, poly orb.Polygon, st Style) {
	ras := vector.NewRasterizer(r.canvasW, r.canvasH)

	// Holes wind opposite to their outer ring and cancel out.
	for _, ring := range poly {
		if len(ring) < 3 {
			continue
		}
		for i, pt := range ring {
			x, y := r.lonLatToLocalPx(pt[0], pt[1])
			if i == 0 {
				ras.MoveTo(float32(x), float32(y))
			} else {
				ras.LineTo(float32(x), float32(y))
			}
		}
		ras.ClosePath()
	}

	ras.Draw(dst, dst.Bounds(), image.NewUniform(st.Fill), image.Point{})
}

// strokeLines stamps discs along each segment into a coverage mask and
// composites the stroke colour through it once, so overlaps do not darken.
func (r *Renderer) strokeLines(dst *image.NRGBA, lines []orb.LineString, st Style) {
	if st.Stroke.A == 0 || st.Weight <= 0 {
		return
	}

	mask := image.NewAlpha(dst.Bounds())
	radius := st.Weight / 2.0
	step := 0.75
	if st.Weight >= 5 {
		step = 0.9
	}

	for _, ls := range lines {
		if len(ls) < 2 {
			continue
		}
		for i := 0; i < len(ls)-1; i++ {
			x0, y0 := r.lonLatToLocalPx(ls[i][0], ls[i][1])
			x1, y1 := r.lonLatToLocalPx(ls[i+1][0], ls[i+1][1])

			dx := x1 - x0
			dy := y1 - y0
			segLen := math.Hypot(dx, dy)
			if segLen == 0 {
				r.drawDisc(mask, x0, y0, 0, radius)
				continue
			}

			steps := int(math.Ceil(segLen / step))
			for s := 0; s <= steps; s++ {
				t := float64(s) / float64(steps)
				r.drawDisc(mask, x0+dx*t, y0+dy*t, 0, radius)
			}
		}
	}

	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(st.Stroke), image.Point{}, mask, image.Point{}, draw.Over)
}

func (r *Renderer) drawCircle(dst *image.NRGBA, p orb.Point, st Style) {
	if st.Radius <= 0 {
		return
	}
	cx, cy := r.lonLatToLocalPx(p[0], p[1])

	if st.Fill.A > 0 {
		mask := image.NewAlpha(dst.Bounds())
		r.drawDisc(mask, cx, cy, 0, st.Radius)
		draw.DrawMask(dst, dst.Bounds(), image.NewUniform(st.Fill), image.Point{}, mask, image.Point{}, draw.Over)
	}
	if st.Stroke.A > 0 && st.Weight > 0 {
		mask := image.NewAlpha(dst.Bounds())
		half := st.Weight / 2.0
		r.drawDisc(mask, cx, cy, math.Max(0, st.Radius-half), st.Radius+half)
		draw.DrawMask(dst, dst.Bounds(), image.NewUniform(st.Stroke), image.Point{}, mask, image.Point{}, draw.Over)
	}
}

// drawDisc marks pixels whose centre lies between inner and outer radius.
func (r *Renderer) drawDisc(mask *image.Alpha, cx, cy, inner, outer float64) {
	minX := max(int(math.Floor(cx-outer)), 0)
	maxX := min(int(math.Ceil(cx+outer)), r.canvasW-1)
	minY := max(int(math.Floor(cy-outer)), 0)
	maxY := min(int(math.Ceil(cy+outer)), r.canvasH-1)

	in2 := inner * inner
	out2 := outer * outer
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := (float64(x) + 0.5) - cx
			dy := (float64(y) + 0.5) - cy
			d2 := dx*dx + dy*dy
			if d2 <= out2 && (inner == 0 || d2 >= in2) {
				mask.Pix[mask.PixOffset(x, y)] = 255
			}
		}
	}
}

// lonLatToLocalPx maps WGS84 lon/lat to local pixel coordinates on the current canvas.
// It uses WebMercator math in "global pixel" space, then applies the configured offset.
func (r *Renderer) lonLatToLocalPx(lon, lat float64) (float64, float64) {
	n := math.Pow(2, float64(r.zoom))

	// Global pixel space (at this zoom) in [0, n*tileSize)
	globalX := (lon + 180.0) / 360.0 * n * float64(r.tileSize)

	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	latRad := lat * math.Pi / 180.0
	mercY := math.Log(math.Tan(math.Pi/4.0 + latRad/2.0))
	globalY := (1.0 - mercY/math.Pi) / 2.0 * n * float64(r.tileSize)

	return globalX - float64(r.offsetX), globalY - float64(r.offsetY)
}

// Empty reports whether img has no visible pixel.
func Empty(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			return false
		}
	}
	return true
}
