// Package geojson decodes and normalises GeoJSON documents into orb feature collections.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalid is returned for documents that are not GeoJSON.
var ErrInvalid = errors.New("geojson: invalid document")

var geometryTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

// Decode parses a FeatureCollection, a single Feature or a bare Geometry and
// always returns a FeatureCollection.
func Decode(data []byte) (*geojson.FeatureCollection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch {
	case head.Type == "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		for i, f := range fc.Features {
			if f == nil {
				return nil, fmt.Errorf("%w: feature %d is null", ErrInvalid, i)
			}
			if f.Properties == nil {
				f.Properties = geojson.Properties{}
			}
		}
		return fc, nil

	case head.Type == "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil

	case geometryTypes[head.Type]:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g.Geometry()))
		return fc, nil

	case head.Type == "":
		return nil, fmt.Errorf("%w: missing \"type\" member", ErrInvalid)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalid, head.Type)
	}
}

// FromValue converts an in-memory value into a FeatureCollection. It accepts
// orb/geojson values, orb geometries, raw JSON ([]byte or string) and decoded
// JSON (maps and slices). The returned bytes are the JSON form of v, which is
// needed for CRS detection. Inputs are never shared with the result.
func FromValue(v any) (*geojson.FeatureCollection, []byte, error) {
	var data []byte
	var err error

	switch val := v.(type) {
	case nil:
		return nil, nil, fmt.Errorf("%w: nil value", ErrInvalid)
	case []byte:
		data = val
	case string:
		data = []byte(val)
	case json.RawMessage:
		data = val
	case orb.Geometry:
		data, err = json.Marshal(geojson.NewGeometry(val))
	case []any:
		// A bare sequence of features
		data, err = json.Marshal(map[string]any{"type": "FeatureCollection", "features": val})
	default:
		data, err = json.Marshal(val)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	fc, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return fc, data, nil
}

// Encode marshals the collection as compact GeoJSON.
func Encode(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}

// EncodeIndent marshals the collection as indented GeoJSON.
func EncodeIndent(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}

// Bound returns the union of all feature bounds and false when no feature has geometry.
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

// PropertyKeys returns the sorted union of property keys over all features.
func PropertyKeys(fc *geojson.FeatureCollection) []string {
	seen := make(map[string]bool)
	for _, f := range fc.Features {
		for k := range f.Properties {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GeometryTypes counts features per GeoJSON geometry type ("null" for missing geometry).
func GeometryTypes(fc *geojson.FeatureCollection) map[string]int {
	counts := make(map[string]int)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			counts["null"]++
			continue
		}
		counts[f.Geometry.GeoJSONType()]++
	}
	return counts
}

// Summary returns a short human-readable description of the collection.
func Summary(fc *geojson.FeatureCollection) string {
	counts := GeometryTypes(fc)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return fmt.Sprintf("%s (Total: %d)", strings.Join(parts, ", "), len(fc.Features))
}
