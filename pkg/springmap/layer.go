package springmap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	gj "github.com/MeKo-Tech/springmap/internal/geojson"
	"github.com/MeKo-Tech/springmap/internal/mbtiles"
	"github.com/MeKo-Tech/springmap/internal/render"
	"github.com/MeKo-Tech/springmap/internal/types"
)

// LayerKind distinguishes layer implementations.
type LayerKind string

const (
	KindVector LayerKind = "vector"
	KindTile   LayerKind = "tile"
	KindRaster LayerKind = "raster"
	KindImage  LayerKind = "image"
)

// Layer is something drawn on the map. The set of implementations is closed:
// *VectorLayer, *TileLayer, *RasterLayer and *ImageOverlay.
type Layer interface {
	ID() string
	Name() string
	Kind() LayerKind
	document(tileServer string) (render.Layer, error)
}

// MarkerIcon replaces the default circle for point features.
type MarkerIcon struct {
	URL    string
	Width  int
	Height int
}

// VectorLayer is a styled feature collection in EPSG:4326.
type VectorLayer struct {
	id       string
	name     string
	source   string
	features *geojson.FeatureCollection
	styles   []map[string]any
	icon     *MarkerIcon
	tooltip  string
	popup    bool
}

func (l *VectorLayer) ID() string      { return l.id }
func (l *VectorLayer) Name() string    { return l.name }
func (l *VectorLayer) Kind() LayerKind { return KindVector }

// Source describes where the data came from.
func (l *VectorLayer) Source() string { return l.source }

// Features returns the layer's collection. Callers must not modify it.
func (l *VectorLayer) Features() *geojson.FeatureCollection { return l.features }

// Len returns the number of features.
func (l *VectorLayer) Len() int { return len(l.features.Features) }

// Style returns the resolved style of feature i.
func (l *VectorLayer) Style(i int) map[string]any {
	if i < 0 || i >= len(l.styles) {
		return nil
	}
	return l.styles[i]
}

// Bound returns the extent of the features; ok is false when there are none.
func (l *VectorLayer) Bound() (orb.Bound, bool) { return gj.Bound(l.features) }

// GeoJSON encodes the features.
func (l *VectorLayer) GeoJSON() ([]byte, error) { return gj.Encode(l.features) }

func (l *VectorLayer) document(string) (render.Layer, error) {
	data, err := l.GeoJSON()
	if err != nil {
		return render.Layer{}, fmt.Errorf("failed to encode layer %q: %w", l.name, err)
	}
	out := render.Layer{
		ID:      l.id,
		Name:    l.name,
		Kind:    render.KindGeoJSON,
		Data:    json.RawMessage(data),
		Styles:  l.styles,
		Tooltip: l.tooltip,
		Popup:   l.popup,
	}
	if l.icon != nil {
		out.Icon = &render.Icon{URL: l.icon.URL, Size: [2]int{l.icon.Width, l.icon.Height}}
	}
	return out, nil
}

// TileSource is a caller-built XYZ tile source.
type TileSource struct {
	Name        string
	URL         string // template with {z}, {x}, {y} and optional {s}
	Attribution string
	MaxZoom     int
	Subdomains  []string
	TMS         bool
	Opacity     float64
	// Basemap puts the layer in the base layer group instead of the overlays.
	Basemap bool
}

func (s TileSource) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: tile source needs a name", ErrConfig)
	}
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(s.URL, p) && !(p == "{y}" && strings.Contains(s.URL, "{-y}")) {
			return fmt.Errorf("%w: tile URL %q lacks %s", ErrConfig, s.URL, p)
		}
	}
	if strings.Contains(s.URL, "{s}") && len(s.Subdomains) == 0 {
		return fmt.Errorf("%w: tile URL %q uses {s} without subdomains", ErrConfig, s.URL)
	}
	if s.Opacity < 0 || s.Opacity > 1 {
		return fmt.Errorf("%w: opacity %.2f outside [0, 1]", ErrConfig, s.Opacity)
	}
	return nil
}

// TileLayer is an XYZ tile layer, either a basemap or an overlay.
type TileLayer struct {
	id        string
	basemapID string // registry id for basemaps added by name
	source    TileSource
}

func (l *TileLayer) ID() string      { return l.id }
func (l *TileLayer) Name() string    { return l.source.Name }
func (l *TileLayer) Kind() LayerKind { return KindTile }

// Source returns the tile source.
func (l *TileLayer) Source() TileSource { return l.source }

// BasemapID returns the registry identifier, or "" for custom sources.
func (l *TileLayer) BasemapID() string { return l.basemapID }

func (l *TileLayer) document(string) (render.Layer, error) {
	return render.Layer{
		ID:          l.id,
		Name:        l.source.Name,
		Kind:        render.KindTile,
		Basemap:     l.source.Basemap,
		URL:         l.source.URL,
		Attribution: l.source.Attribution,
		MaxZoom:     l.source.MaxZoom,
		Subdomains:  l.source.Subdomains,
		TMS:         l.source.TMS,
		Opacity:     l.source.Opacity,
	}, nil
}

// RasterLayer is an MBTiles tileset served by the preview server.
type RasterLayer struct {
	id       string
	name     string
	path     string
	opacity  float64
	metadata mbtiles.Metadata
}

func (l *RasterLayer) ID() string      { return l.id }
func (l *RasterLayer) Name() string    { return l.name }
func (l *RasterLayer) Kind() LayerKind { return KindRaster }

// Path is the MBTiles file.
func (l *RasterLayer) Path() string { return l.path }

// Metadata returns the tileset metadata read when the layer was added.
func (l *RasterLayer) Metadata() mbtiles.Metadata { return l.metadata }

// TileURL is the URL template the page requests tiles from.
func (l *RasterLayer) TileURL(tileServer string) string {
	format := l.metadata.Format
	if format == "" {
		format = "png"
	}
	return fmt.Sprintf("%s/tiles/%s/{z}/{x}/{y}.%s", strings.TrimRight(tileServer, "/"), l.id, format)
}

func (l *RasterLayer) document(tileServer string) (render.Layer, error) {
	if tileServer == "" {
		return render.Layer{}, ErrRasterUnsupported
	}
	return render.Layer{
		ID:          l.id,
		Name:        l.name,
		Kind:        render.KindTile,
		URL:         l.TileURL(tileServer),
		Attribution: l.metadata.Attribution,
		MaxZoom:     l.metadata.MaxZoom,
		Opacity:     l.opacity,
	}, nil
}

// ImageOverlay is a static image stretched over geographic bounds.
type ImageOverlay struct {
	id      string
	name    string
	dataURI string
	bounds  types.BoundingBox
	opacity float64
	width   int
	height  int
}

func (l *ImageOverlay) ID() string      { return l.id }
func (l *ImageOverlay) Name() string    { return l.name }
func (l *ImageOverlay) Kind() LayerKind { return KindImage }

// Bounds returns the geographic extent of the image.
func (l *ImageOverlay) Bounds() types.BoundingBox { return l.bounds }

// Size returns the embedded image size in pixels.
func (l *ImageOverlay) Size() (int, int) { return l.width, l.height }

func (l *ImageOverlay) document(string) (render.Layer, error) {
	b := [2][2]float64{{l.bounds.MinLat, l.bounds.MinLon}, {l.bounds.MaxLat, l.bounds.MaxLon}}
	return render.Layer{
		ID:      l.id,
		Name:    l.name,
		Kind:    render.KindImage,
		Image:   l.dataURI,
		Bounds:  &b,
		Opacity: l.opacity,
	}, nil
}
