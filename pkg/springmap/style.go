package springmap

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/paulmach/orb/geojson"
)

// Styler computes Leaflet path options (color, weight, fillColor, ...) for a feature.
type Styler interface {
	Style(f *geojson.Feature) map[string]any
}

// StyleMap applies the same options to every feature.
type StyleMap map[string]any

// Style returns a copy of s.
func (s StyleMap) Style(*geojson.Feature) map[string]any {
	return maps.Clone(map[string]any(s))
}

// StyleFunc computes options per feature.
type StyleFunc func(f *geojson.Feature) map[string]any

// Style calls fn.
func (fn StyleFunc) Style(f *geojson.Feature) map[string]any { return fn(f) }

// resolveStyles evaluates styler for every feature. A nil styler or a nil
// result yields an empty style. Every style must be JSON-serialisable.
func resolveStyles(fc *geojson.FeatureCollection, styler Styler) ([]map[string]any, error) {
	styles := make([]map[string]any, len(fc.Features))
	for i, f := range fc.Features {
		var st map[string]any
		if styler != nil {
			st = styler.Style(f)
		}
		if st == nil {
			st = map[string]any{}
		}
		styles[i] = st
	}

	if _, err := json.Marshal(styles); err != nil {
		return nil, fmt.Errorf("%w: style is not serialisable: %v", ErrConfig, err)
	}
	return styles, nil
}
