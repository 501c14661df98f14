package pipeline

import (
	"github.com/MeKo-Tech/springmap/internal/raster"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

// FromVectorLayer converts a map layer into a rasterisation layer, reading
// each feature's Leaflet path options as its raster style.
func FromVectorLayer(l *springmap.VectorLayer, opacity float64) Layer {
	fc := l.Features()
	styles := make([]raster.Style, len(fc.Features))
	for i := range fc.Features {
		styles[i] = raster.StyleFromOptions(l.Style(i))
	}
	return Layer{Name: l.Name(), Features: fc, Styles: styles, Opacity: opacity}
}

// FromMap collects every vector layer of m, bottom first.
func FromMap(m *springmap.Map) []Layer {
	var layers []Layer
	for _, l := range m.Layers() {
		if vl, ok := l.(*springmap.VectorLayer); ok {
			layers = append(layers, FromVectorLayer(vl, 1))
		}
	}
	return layers
}
