// Package crs detects coordinate reference systems and reprojects geometries to
// geographic WGS84 (EPSG:4326). Web Mercator goes through orb/project; other
// projected systems (UTM, transverse Mercator, Lambert, Albers) are described
// by .prj WKT or EPSG code and transformed with ctessum/geom/proj.
package crs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

var (
	// ErrUnsupported is returned for coordinate systems that cannot be transformed.
	ErrUnsupported = errors.New("crs: unsupported coordinate reference system")
	// ErrOutOfRange is returned when transformed coordinates are not valid lon/lat.
	ErrOutOfRange = errors.New("crs: coordinates outside geographic range")
	// ErrTransform is returned when a coordinate cannot be transformed.
	ErrTransform = errors.New("crs: transform failed")
)

// Code is an EPSG code. Zero means the source did not declare a system.
type Code int

const (
	Unknown      Code = 0
	WGS84        Code = 4326
	WebMercator  Code = 3857
	googleLegacy Code = 900913
	esriMercator Code = 102100
)

func (c Code) String() string {
	if c == Unknown {
		return "unknown"
	}
	return "EPSG:" + strconv.Itoa(int(c))
}

// Normalize folds aliases of the same system onto one code.
func (c Code) Normalize() Code {
	switch c {
	case googleLegacy, esriMercator, 3785:
		return WebMercator
	case 4269, 4258, 4979:
		// NAD83 / ETRS89 / 3D WGS84 are treated as geographic lon/lat
		return WGS84
	}
	return c
}

// Parse reads identifiers such as "EPSG:3857", "urn:ogc:def:crs:EPSG::4326",
// "urn:ogc:def:crs:OGC:1.3:CRS84" or a bare number.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown, nil
	}
	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CRS84") {
		return WGS84, nil
	}

	idx := strings.LastIndex(upper, ":")
	num := upper[idx+1:]
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Unknown, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
	return Code(n).Normalize(), nil
}

// FromGeoJSON reads the legacy "crs" member of a GeoJSON document.
// Documents without one are RFC 7946 and therefore WGS84.
func FromGeoJSON(data []byte) (Code, error) {
	var doc struct {
		CRS *struct {
			Type       string `json:"type"`
			Properties struct {
				Name string `json:"name"`
				Code int    `json:"code"`
			} `json:"properties"`
		} `json:"crs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Unknown, fmt.Errorf("failed to read crs member: %w", err)
	}
	if doc.CRS == nil {
		return WGS84, nil
	}
	switch strings.ToLower(doc.CRS.Type) {
	case "name":
		return Parse(doc.CRS.Properties.Name)
	case "epsg":
		return Code(doc.CRS.Properties.Code).Normalize(), nil
	default:
		return Unknown, fmt.Errorf("%w: crs type %q", ErrUnsupported, doc.CRS.Type)
	}
}

// System is the coordinate reference system a dataset was declared in.
type System struct {
	Code Code   // EPSG code; Unknown when only WKT described the system
	Name string // WKT name, if any
	sr   *proj.SR
}

func (s System) String() string {
	if s.Code == Unknown && s.Name != "" {
		return s.Name
	}
	return s.Code.String()
}

// Projected reports whether s needs a ctessum/geom/proj transform.
func (s System) Projected() bool { return s.sr != nil }

// Lookup resolves an EPSG code to a System. WGS84 UTM zones (326xx, 327xx)
// and NAD83 UTM zones (269xx) are built from proj4 definitions.
func Lookup(code Code) (System, error) {
	code = code.Normalize()
	switch code {
	case Unknown, WGS84, WebMercator:
		return System{Code: code}, nil
	}

	var def string
	switch n := int(code); {
	case n >= 32601 && n <= 32660:
		def = fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", n-32600)
	case n >= 32701 && n <= 32760:
		def = fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", n-32700)
	case n >= 26901 && n <= 26923:
		def = fmt.Sprintf("+proj=utm +zone=%d +datum=NAD83 +units=m +no_defs", n-26900)
	default:
		def = code.String()
	}

	sr, err := parseSR(def)
	if err != nil {
		return System{}, fmt.Errorf("%w: %s", ErrUnsupported, code)
	}
	return System{Code: code, sr: sr}, nil
}

// FromPRJ inspects the WKT of a shapefile .prj sidecar.
func FromPRJ(wkt string) (System, error) {
	trimmed := strings.TrimSpace(wkt)
	w := strings.ToUpper(trimmed)
	if w == "" {
		return System{}, nil
	}
	name := wktName(trimmed)

	if strings.HasPrefix(w, "PROJCS") {
		switch {
		case strings.Contains(w, "MERCATOR_AUXILIARY_SPHERE"),
			strings.Contains(w, "PSEUDO_MERCATOR"),
			strings.Contains(w, "PSEUDO-MERCATOR"),
			strings.Contains(w, "POPULAR VISUALISATION"),
			strings.Contains(w, `AUTHORITY["EPSG","3857"]`):
			return System{Code: WebMercator, Name: name}, nil
		}
		sr, err := parseSR(trimmed)
		if err != nil {
			return System{}, fmt.Errorf("%w: projected system %s: %v", ErrUnsupported, name, err)
		}
		return System{Name: name, sr: sr}, nil
	}

	if strings.HasPrefix(w, "GEOGCS") || strings.HasPrefix(w, "GEOGCRS") {
		return System{Code: WGS84, Name: name}, nil
	}

	return System{}, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

// parseSR parses a WKT or proj4 definition and checks that its projection
// is implemented. The WKT parser panics on truncated input.
func parseSR(def string) (sr *proj.SR, err error) {
	defer func() {
		if r := recover(); r != nil {
			sr, err = nil, fmt.Errorf("malformed definition: %v", r)
		}
	}()

	sr, err = proj.Parse(def)
	if err != nil {
		return nil, err
	}
	if _, _, err := sr.Transformers(); err != nil {
		return nil, err
	}
	return sr, nil
}

// wktName extracts the quoted name of the outermost WKT node.
func wktName(wkt string) string {
	start := strings.Index(wkt, `"`)
	if start < 0 {
		return "unnamed"
	}
	end := strings.Index(wkt[start+1:], `"`)
	if end < 0 {
		return "unnamed"
	}
	return wkt[start+1 : start+1+end]
}

// ToWGS84 reprojects every feature of fc in place from sys to EPSG:4326 and
// verifies the result is inside the geographic range. Unknown is accepted when
// the coordinates already look like lon/lat.
func ToWGS84(fc *geojson.FeatureCollection, sys System) error {
	if sys.sr == nil {
		resolved, err := Lookup(sys.Code)
		if err != nil {
			return err
		}
		resolved.Name = sys.Name
		sys = resolved
	}

	switch {
	case sys.sr != nil:
		if err := transform(fc, sys.sr); err != nil {
			return fmt.Errorf("%s: %w", sys, err)
		}
	case sys.Code == WebMercator:
		for _, f := range fc.Features {
			if f.Geometry != nil {
				f.Geometry = project.Geometry(f.Geometry, project.Mercator.ToWGS84)
			}
		}
	}

	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !inRange(f.Geometry.Bound()) {
			if sys.Code == Unknown && sys.sr == nil {
				return fmt.Errorf("%w: feature %d has no declared CRS and is not lon/lat", ErrUnsupported, i)
			}
			return fmt.Errorf("%w: feature %d bound %v", ErrOutOfRange, i, f.Geometry.Bound())
		}
	}
	return nil
}

func transform(fc *geojson.FeatureCollection, src *proj.SR) error {
	dst, err := proj.Parse("EPSG:4326")
	if err != nil {
		return err
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransform, err)
	}
	if t == nil {
		return nil
	}

	var first error
	toWGS84 := func(p orb.Point) orb.Point {
		x, y, err := t(p[0], p[1])
		if err != nil && first == nil {
			first = err
		}
		return orb.Point{x, y}
	}
	for _, f := range fc.Features {
		if f.Geometry != nil {
			f.Geometry = project.Geometry(f.Geometry, toWGS84)
		}
	}
	if first != nil {
		return fmt.Errorf("%w: %w", ErrTransform, first)
	}
	return nil
}

func inRange(b orb.Bound) bool {
	return b.Min.Lon() >= -180 && b.Max.Lon() <= 180 &&
		b.Min.Lat() >= -90 && b.Max.Lat() <= 90
}
