// Package overlay computes polygon overlays (intersection and difference)
// between two feature collections. Candidate pairs come from an R-tree over
// the second collection; clipping is done by ctessum/geom.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrGeometry is returned when an input feature is not a polygon.
	ErrGeometry = errors.New("overlay: input geometry is not polygonal")
	// ErrCompute is returned when clipping fails.
	ErrCompute = errors.New("overlay: clipping failed")
)

// Op selects the overlay operation.
type Op int

const (
	// Intersection keeps the area shared by an A feature and a B feature,
	// one output feature per overlapping pair.
	Intersection Op = iota
	// Difference keeps the part of each A feature not covered by any B feature.
	Difference
)

func (o Op) String() string {
	switch o {
	case Intersection:
		return "intersection"
	case Difference:
		return "difference"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// ParseOp reads "intersection" (default) or "difference".
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "intersection", "intersect":
		return Intersection, nil
	case "difference", "diff":
		return Difference, nil
	default:
		return Intersection, fmt.Errorf("unknown overlay operation %q", s)
	}
}

// minArea drops slivers produced by floating point noise on shared edges.
const minArea = 1e-14

// Compute overlays a with b. Features without geometry are skipped; any other
// non-polygonal feature is an error. The result is never nil.
func Compute(ctx context.Context, a, b *geojson.FeatureCollection, op Op) (*geojson.FeatureCollection, error) {
	left, err := toPolygons(a)
	if err != nil {
		return nil, fmt.Errorf("first dataset: %w", err)
	}
	right, err := toPolygons(b)
	if err != nil {
		return nil, fmt.Errorf("second dataset: %w", err)
	}

	idx := newIndex(right)
	out := geojson.NewFeatureCollection()

	for _, l := range left {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates := idx.search(l.bound)

		switch op {
		case Intersection:
			for _, r := range candidates {
				clipped, err := clip(l.poly, r.poly, Intersection)
				if err != nil {
					return nil, err
				}
				g := toOrb(clipped)
				if g == nil {
					continue
				}
				out.Append(&geojson.Feature{
					Type:       "Feature",
					Geometry:   g,
					Properties: mergeProperties(l.props, r.props),
				})
			}

		case Difference:
			rest := l.poly
			for _, r := range candidates {
				rest, err = clip(rest, r.poly, Difference)
				if err != nil {
					return nil, err
				}
			}
			g := toOrb(rest)
			if g == nil {
				continue
			}
			out.Append(&geojson.Feature{
				Type:       "Feature",
				Geometry:   g,
				Properties: l.props.Clone(),
			})

		default:
			return nil, fmt.Errorf("unsupported overlay operation %s", op)
		}
	}

	return out, nil
}

// clip runs one polyclip operation. polyclip panics on some degenerate
// inputs; those are reported as ErrCompute.
func clip(a, b geom.Polygon, op Op) (out geom.Polygon, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrCompute, r)
		}
	}()

	var res geom.Polygonal
	if op == Difference {
		res = a.Difference(b)
	} else {
		res = a.Intersection(b)
	}
	if res == nil {
		return nil, nil
	}
	if p, ok := res.(geom.Polygon); ok {
		return p, nil
	}

	// toOrb rebuilds nesting from the flat contour list
	var flat geom.Polygon
	for _, p := range res.Polygons() {
		flat = append(flat, p...)
	}
	return flat, nil
}

// mergeProperties combines the attributes of both inputs. Keys present in
// both get _1 and _2 suffixes.
func mergeProperties(a, b geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(a)+len(b))
	for k, v := range a {
		if _, clash := b[k]; clash {
			out[k+"_1"] = v
			continue
		}
		out[k] = v
	}
	for k, v := range b {
		if _, clash := a[k]; clash {
			out[k+"_2"] = v
			continue
		}
		out[k] = v
	}
	return out
}

type polygonFeature struct {
	poly  geom.Polygon
	bound orb.Bound
	props geojson.Properties
}

func toPolygons(fc *geojson.FeatureCollection) ([]polygonFeature, error) {
	if fc == nil {
		return nil, nil
	}
	out := make([]polygonFeature, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}

		var rings []orb.Ring
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			rings = append(rings, g...)
		case orb.MultiPolygon:
			for _, p := range g {
				rings = append(rings, p...)
			}
		case orb.Bound:
			rings = append(rings, g.ToRing())
		default:
			return nil, fmt.Errorf("%w: feature %d is a %s", ErrGeometry, i, f.Geometry.GeoJSONType())
		}

		poly := make(geom.Polygon, 0, len(rings))
		for _, r := range rings {
			path := make(geom.Path, 0, len(r))
			for _, p := range r {
				path = append(path, geom.Point{X: p[0], Y: p[1]})
			}
			poly = append(poly, path)
		}
		out = append(out, polygonFeature{poly: poly, bound: f.Geometry.Bound(), props: f.Properties})
	}
	return out, nil
}

// toOrb converts a clip result into an orb Polygon or MultiPolygon. polyclip
// returns a flat list of contours; nesting depth decides which are holes.
// Returns nil when nothing with area is left.
func toOrb(p geom.Polygon) orb.Geometry {
	type contour struct {
		ring   orb.Ring
		area   float64
		parent int
		depth  int
	}

	contours := make([]contour, 0, len(p))
	for _, path := range p {
		if len(path) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(path)+1)
		for _, pt := range path {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		area := planar.Area(ring)
		if area < 0 {
			area = -area
		}
		if area < minArea {
			continue
		}
		contours = append(contours, contour{ring: ring, area: area, parent: -1})
	}

	for i := range contours {
		inside := contours[i].ring[0]
		for j := range contours {
			if i == j || contours[j].area <= contours[i].area {
				continue
			}
			if !planar.RingContains(contours[j].ring, inside) {
				continue
			}
			contours[i].depth++
			if contours[i].parent == -1 || contours[j].area < contours[contours[i].parent].area {
				contours[i].parent = j
			}
		}
	}

	polyOf := make(map[int]int)
	var mp orb.MultiPolygon
	order := make([]int, len(contours))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return contours[order[x]].depth < contours[order[y]].depth })

	for _, i := range order {
		c := contours[i]
		if c.depth%2 == 0 {
			ring := orient(c.ring, orb.CCW)
			polyOf[i] = len(mp)
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		pi, ok := polyOf[c.parent]
		if !ok {
			continue
		}
		mp[pi] = append(mp[pi], orient(c.ring, orb.CW))
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	default:
		return mp
	}
}

func orient(r orb.Ring, want orb.Orientation) orb.Ring {
	if r.Orientation() != want {
		r.Reverse()
	}
	return r
}

type entry struct {
	index   int
	feature polygonFeature
}

func (e *entry) Bounds() rtreego.Rect {
	return rectFor(e.feature.bound)
}

// rectFor converts a bound into an R-tree rectangle. Degenerate extents are
// padded since rtreego rejects zero lengths.
func rectFor(b orb.Bound) rtreego.Rect {
	const pad = 1e-9
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	if w <= 0 {
		w = pad
	}
	if h <= 0 {
		h = pad
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
	return rect
}

type index struct {
	tree *rtreego.Rtree
}

func newIndex(features []polygonFeature) *index {
	tree := rtreego.NewTree(2, 25, 50)
	for i := range features {
		tree.Insert(&entry{index: i, feature: features[i]})
	}
	return &index{tree: tree}
}

// search returns the features whose bounds intersect b, in input order.
func (x *index) search(b orb.Bound) []polygonFeature {
	hits := x.tree.SearchIntersect(rectFor(b))
	entries := make([]*entry, 0, len(hits))
	for _, h := range hits {
		entries = append(entries, h.(*entry))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	out := make([]polygonFeature, len(entries))
	for i, e := range entries {
		out[i] = e.feature
	}
	return out
}
