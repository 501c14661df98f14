// Package shapefile reads ESRI shapefiles (loose .shp/.dbf/.prj files or a
// .zip archive) into GeoJSON feature collections using jonas-p/go-shp.
// Coordinates are returned in the source projection; the .prj text is handed
// back so callers can reproject.
package shapefile

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrFormat is returned for missing, truncated or corrupt shapefiles.
var ErrFormat = errors.New("shapefile: invalid or corrupt shapefile")

const (
	fileCode   = 9994
	headerSize = 100
)

// Dataset is a decoded shapefile.
type Dataset struct {
	Features   *geojson.FeatureCollection
	Projection string // raw .prj WKT, empty when the sidecar is absent
	ShapeType  string
}

// Files holds the raw members of a shapefile. DBF and PRJ are optional.
type Files struct {
	SHP []byte
	SHX []byte
	DBF []byte
	PRJ []byte
}

// Read decodes a .shp file (with sibling .dbf/.prj) or a .zip archive.
func Read(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return readZip(path)
	case ".shp":
		return readShp(path)
	default:
		return nil, fmt.Errorf("%w: %s is neither .shp nor .zip", ErrFormat, filepath.Base(path))
	}
}

// ReadZipBytes decodes a zipped shapefile held in memory.
func ReadZipBytes(data []byte) (*Dataset, error) {
	dir, err := os.MkdirTemp("", "springmap-shp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "layer.zip")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	return readZip(path)
}

// ReadFiles decodes shapefile members held in memory.
func ReadFiles(files Files) (*Dataset, error) {
	if err := checkHeader(files.SHP); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "springmap-shp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	members := map[string][]byte{
		"layer.shp": files.SHP,
		"layer.shx": files.SHX,
		"layer.dbf": files.DBF,
		"layer.prj": files.PRJ,
	}
	for name, data := range members {
		if data == nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return readShp(filepath.Join(dir, "layer.shp"))
}

func readShp(path string) (*Dataset, error) {
	head, err := readHead(path)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(head); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	prj := ""
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if data, err := os.ReadFile(base + ".prj"); err == nil {
		prj = string(data)
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer r.Close()

	// go-shp panics on attribute reads without a .dbf
	hasDBF := fileExists(base+".dbf") || fileExists(base+".DBF")
	var fields []shp.Field
	if hasDBF {
		fields = r.Fields()
	}

	fc, err := collect(r, fields, func(row, col int) string {
		return r.ReadAttribute(row, col)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &Dataset{Features: fc, Projection: prj, ShapeType: typeName(r.GeometryType)}, nil
}

func readZip(path string) (*Dataset, error) {
	prj, head, err := inspectZip(path)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(head); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	r, err := shp.OpenZip(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer r.Close()

	fields := r.Fields()
	fc, err := collect(r, fields, func(_, col int) string {
		return r.Attribute(col)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	var shapeType string
	if len(fc.Features) > 0 && fc.Features[0].Geometry != nil {
		shapeType = fc.Features[0].Geometry.GeoJSONType()
	}
	return &Dataset{Features: fc, Projection: prj, ShapeType: shapeType}, nil
}

// inspectZip returns the .prj text and the .shp header of a zipped shapefile.
func inspectZip(path string) (string, []byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer zr.Close()

	var prj string
	var head []byte
	shpCount := 0
	for _, f := range zr.File {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".prj":
			data, err := readMember(f, 1<<20)
			if err != nil {
				return "", nil, err
			}
			prj = string(data)
		case ".shp":
			shpCount++
			head, err = readMember(f, headerSize)
			if err != nil {
				return "", nil, err
			}
		}
	}

	switch shpCount {
	case 0:
		return "", nil, fmt.Errorf("%w: archive contains no .shp file", ErrFormat)
	case 1:
		return prj, head, nil
	default:
		return "", nil, fmt.Errorf("%w: archive contains %d .shp files", ErrFormat, shpCount)
	}
}

func readMember(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFormat, f.Name, err)
	}
	return data, nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return head[:n], nil
}

func checkHeader(head []byte) error {
	if len(head) < headerSize {
		return fmt.Errorf("%w: header truncated (%d bytes)", ErrFormat, len(head))
	}
	if code := binary.BigEndian.Uint32(head[:4]); code != fileCode {
		return fmt.Errorf("%w: bad file code %d", ErrFormat, code)
	}
	return nil
}

type shapeSource interface {
	Next() bool
	Shape() (int, shp.Shape)
	Err() error
}

// collect drains src into a feature collection. go-shp panics on some
// malformed records, so panics are reported as ErrFormat.
func collect(src shapeSource, fields []shp.Field, attr func(row, col int) string) (fc *geojson.FeatureCollection, err error) {
	defer func() {
		if r := recover(); r != nil {
			fc = nil
			err = fmt.Errorf("%w: %v", ErrFormat, r)
		}
	}()

	fc = geojson.NewFeatureCollection()
	for src.Next() {
		row, shape := src.Shape()

		geom, err := toGeometry(shape)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", row, err)
		}

		f := &geojson.Feature{Type: "Feature", Geometry: geom, Properties: geojson.Properties{}}
		for col, field := range fields {
			f.Properties[field.String()] = attributeValue(field, attr(row, col))
		}
		fc.Append(f)
	}
	if err := src.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return fc, nil
}

// attributeValue converts a dBase value according to its field type.
func attributeValue(field shp.Field, raw string) any {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))

	switch field.Fieldtype {
	case 'N', 'F':
		if raw == "" || strings.Trim(raw, "*") == "" {
			return nil
		}
		if field.Precision == 0 {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return n
			}
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return raw
	case 'L':
		switch strings.ToUpper(raw) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		default:
			return nil
		}
	default:
		return raw
	}
}

func toGeometry(shape shp.Shape) (orb.Geometry, error) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		return multiPoint(s.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(s.Points), nil
	case *shp.MultiPointM:
		return multiPoint(s.Points), nil
	case *shp.PolyLine:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineM:
		return lines(s.Parts, s.Points)
	case *shp.Polygon:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonZ:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonM:
		return polygons(s.Parts, s.Points)
	default:
		return nil, fmt.Errorf("%w: unsupported shape %T", ErrFormat, shape)
	}
}

func multiPoint(points []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// splitParts cuts the flat point list at the part offsets.
func splitParts(parts []int32, points []shp.Point) ([][]orb.Point, error) {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			return nil, fmt.Errorf("%w: part offsets out of range", ErrFormat)
		}
		pts := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			pts = append(pts, orb.Point{p.X, p.Y})
		}
		out = append(out, pts)
	}
	return out, nil
}

func lines(parts []int32, points []shp.Point) (orb.Geometry, error) {
	split, err := splitParts(parts, points)
	if err != nil {
		return nil, err
	}
	if len(split) == 1 {
		return orb.LineString(split[0]), nil
	}
	mls := make(orb.MultiLineString, len(split))
	for i, pts := range split {
		mls[i] = orb.LineString(pts)
	}
	return mls, nil
}

// polygons groups rings into polygons. Shapefile outer rings are clockwise and
// holes counter-clockwise; each hole goes to the smallest outer ring that
// contains it, whatever the part order. A hole inside no outer ring becomes a
// polygon of its own. Output rings follow RFC 7946 winding (outer
// counter-clockwise).
func polygons(parts []int32, points []shp.Point) (orb.Geometry, error) {
	split, err := splitParts(parts, points)
	if err != nil {
		return nil, err
	}

	var outers, holes []orb.Ring
	for _, pts := range split {
		ring := orb.Ring(pts)
		if len(ring) < 4 {
			return nil, fmt.Errorf("%w: ring with %d points", ErrFormat, len(ring))
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		if ring.Orientation() == orb.CW {
			outers = append(outers, ring)
		} else {
			holes = append(holes, ring)
		}
	}

	mp := make(orb.MultiPolygon, 0, len(outers))
	areas := make([]float64, len(outers))
	for i, ring := range outers {
		areas[i] = math.Abs(planar.Area(ring))
		ring.Reverse()
		mp = append(mp, orb.Polygon{ring})
	}

	for _, hole := range holes {
		owner := -1
		for i := range outers {
			if !planar.RingContains(mp[i][0], hole[0]) {
				continue
			}
			if owner == -1 || areas[i] < areas[owner] {
				owner = i
			}
		}
		if owner == -1 {
			mp = append(mp, orb.Polygon{hole})
			continue
		}
		hole.Reverse()
		mp[owner] = append(mp[owner], hole)
	}

	if len(mp) == 1 {
		return mp[0], nil
	}
	return mp, nil
}

func typeName(t shp.ShapeType) string {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return "Point"
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return "MultiPoint"
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return "LineString"
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return "Polygon"
	case shp.NULL:
		return "Null"
	default:
		return "Unknown"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsZip reports whether data starts with the ZIP local-file signature.
func IsZip(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// IsShp reports whether data starts with the shapefile file code.
func IsShp(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data[:4]) == fileCode
}
