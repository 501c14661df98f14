// Package mapconfig reads map documents (YAML, JSON or TOML) and builds
// springmap maps from them.
package mapconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

// ErrInvalid is returned for documents that fail validation.
var ErrInvalid = errors.New("mapconfig: invalid document")

// Document is a map description.
type Document struct {
	Title      string         `mapstructure:"title"`
	Center     []float64      `mapstructure:"center"` // lat, lon
	Zoom       int            `mapstructure:"zoom"`
	MinZoom    int            `mapstructure:"min_zoom"`
	MaxZoom    int            `mapstructure:"max_zoom"`
	Basemap    string         `mapstructure:"basemap"`
	Options    map[string]any `mapstructure:"options"`
	TileServer string         `mapstructure:"tile_server"`
	ImageSize  int            `mapstructure:"image_max_size"`
	Workers    int            `mapstructure:"workers"`
	Layers     []Layer        `mapstructure:"layers"`
	Controls   []Control      `mapstructure:"controls"`

	// dir resolves relative layer paths; it is the directory of the file read.
	dir string
}

// Layer is one entry of the layers list.
type Layer struct {
	Name       string         `mapstructure:"name"`
	Type       string         `mapstructure:"type"`
	Source     string         `mapstructure:"source"`
	Style      map[string]any `mapstructure:"style"`
	Icon       string         `mapstructure:"icon"`
	Tooltip    string         `mapstructure:"tooltip"`
	Popup      bool           `mapstructure:"popup"`
	Bounds     []float64      `mapstructure:"bounds"` // minLon, minLat, maxLon, maxLat
	Categories []string       `mapstructure:"categories"`
	Opacity    float64        `mapstructure:"opacity"`

	// tiles layers
	URL         string   `mapstructure:"url"`
	Attribution string   `mapstructure:"attribution"`
	Subdomains  []string `mapstructure:"subdomains"`
	MaxZoom     int      `mapstructure:"max_zoom"`
	TMS         bool     `mapstructure:"tms"`
	Base        bool     `mapstructure:"base"`
}

// Control is one entry of the controls list.
type Control struct {
	Type     string   `mapstructure:"type"` // layers, zoom_slider, basemap_selector
	Position string   `mapstructure:"position"`
	Basemaps []string `mapstructure:"basemaps"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("center", []float64{springmap.DefaultCenter.Lat, springmap.DefaultCenter.Lon})
	v.SetDefault("zoom", springmap.DefaultZoom)
	v.SetDefault("min_zoom", springmap.DefaultMinZoom)
	v.SetDefault("max_zoom", springmap.DefaultMaxZoom)
	v.SetDefault("workers", runtime.NumCPU())
	return v
}

// Load reads a document from path; the format follows the extension.
func Load(path string) (*Document, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read map document %s: %w", path, err)
	}

	doc, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.dir = filepath.Dir(path)
	return doc, nil
}

// Read parses a document from r. format is yaml, json or toml.
func Read(r io.Reader, format string) (*Document, error) {
	v := newViper()
	v.SetConfigType(strings.ToLower(format))
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to read map document: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Document, error) {
	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	doc.Options = leafletKeys(doc.Options)
	for i := range doc.Layers {
		doc.Layers[i].Style = leafletKeys(doc.Layers[i].Style)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// viper folds keys to lower case; Leaflet options are camelCase.
var leafletNames = map[string]string{
	"fillcolor":           "fillColor",
	"fillopacity":         "fillOpacity",
	"fillrule":            "fillRule",
	"dasharray":           "dashArray",
	"dashoffset":          "dashOffset",
	"linecap":             "lineCap",
	"linejoin":            "lineJoin",
	"scrollwheelzoom":     "scrollWheelZoom",
	"doubleclickzoom":     "doubleClickZoom",
	"boxzoom":             "boxZoom",
	"zoomcontrol":         "zoomControl",
	"attributioncontrol":  "attributionControl",
	"zoomsnap":            "zoomSnap",
	"zoomdelta":           "zoomDelta",
	"maxbounds":           "maxBounds",
	"maxboundsviscosity":  "maxBoundsViscosity",
	"worldcopyjump":       "worldCopyJump",
	"prefercanvas":        "preferCanvas",
	"keyboardpandelta":    "keyboardPanDelta",
	"touchzoom":           "touchZoom",
	"tapholdtimeout":      "tapHoldTimeout",
	"inertiadeceleration": "inertiaDeceleration",
}

func leafletKeys(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if name, ok := leafletNames[strings.ToLower(k)]; ok {
			k = name
		}
		out[k] = v
	}
	return out
}

var layerTypes = map[string]bool{
	springmap.SpecGeoJSON:   true,
	springmap.SpecShapefile: true,
	springmap.SpecCSV:       true,
	springmap.SpecVector:    true,
	springmap.SpecOSM:       true,
	springmap.SpecRaster:    true,
	springmap.SpecImage:     true,
	springmap.SpecTiles:     true,
	springmap.SpecBasemap:   true,
}

// Validate checks structure; values such as basemap names and files are
// checked when the map is built.
func (d *Document) Validate() error {
	if len(d.Center) != 2 {
		return fmt.Errorf("%w: center needs [lat, lon], got %d values", ErrInvalid, len(d.Center))
	}
	if d.MinZoom > d.MaxZoom {
		return fmt.Errorf("%w: min_zoom %d > max_zoom %d", ErrInvalid, d.MinZoom, d.MaxZoom)
	}

	for i, l := range d.Layers {
		typ := strings.ToLower(l.Type)
		if !layerTypes[typ] {
			return fmt.Errorf("%w: layer %d (%s): unknown type %q", ErrInvalid, i, l.Name, l.Type)
		}
		if l.Bounds != nil && len(l.Bounds) != 4 {
			return fmt.Errorf("%w: layer %d (%s): bounds needs [minLon, minLat, maxLon, maxLat]", ErrInvalid, i, l.Name)
		}
		switch typ {
		case springmap.SpecImage, springmap.SpecOSM:
			if l.Bounds == nil {
				return fmt.Errorf("%w: layer %d (%s): %s layers need bounds", ErrInvalid, i, l.Name, typ)
			}
		case springmap.SpecTiles:
			if l.URL == "" {
				return fmt.Errorf("%w: layer %d (%s): tiles layers need a url", ErrInvalid, i, l.Name)
			}
		}
		if typ != springmap.SpecTiles && typ != springmap.SpecOSM && l.Source == "" {
			return fmt.Errorf("%w: layer %d (%s): source is required", ErrInvalid, i, l.Name)
		}
	}

	for i, c := range d.Controls {
		switch c.Type {
		case "layers", "zoom_slider", "basemap_selector":
		default:
			return fmt.Errorf("%w: control %d: unknown type %q", ErrInvalid, i, c.Type)
		}
	}
	return nil
}

// Specs converts the layer list into springmap layer specs.
func (d *Document) Specs() []springmap.LayerSpec {
	specs := make([]springmap.LayerSpec, 0, len(d.Layers))
	for _, l := range d.Layers {
		spec := springmap.LayerSpec{
			Type:       strings.ToLower(l.Type),
			Name:       l.Name,
			Categories: l.Categories,
			Opacity:    l.Opacity,
		}
		if l.Style != nil {
			spec.Style = springmap.StyleMap(l.Style)
		}
		if l.Icon != "" {
			spec.Options = append(spec.Options, springmap.WithMarkerIcon(l.Icon))
		}
		if l.Tooltip != "" {
			spec.Options = append(spec.Options, springmap.WithTooltip(l.Tooltip))
		}
		if l.Popup {
			spec.Options = append(spec.Options, springmap.WithPopup())
		}
		if len(l.Bounds) == 4 {
			spec.Bounds = springmap.BoundingBox{MinLon: l.Bounds[0], MinLat: l.Bounds[1], MaxLon: l.Bounds[2], MaxLat: l.Bounds[3]}
		}

		switch spec.Type {
		case springmap.SpecBasemap:
			spec.Basemap = l.Source
		case springmap.SpecTiles:
			spec.Tile = springmap.TileSource{
				Name:        l.Name,
				URL:         l.URL,
				Attribution: l.Attribution,
				MaxZoom:     l.MaxZoom,
				Subdomains:  l.Subdomains,
				TMS:         l.TMS,
				Opacity:     l.Opacity,
				Basemap:     l.Base,
			}
		case springmap.SpecOSM:
		default:
			spec.Source = d.source(l.Source)
		}
		specs = append(specs, spec)
	}
	return specs
}

func (d *Document) source(s string) springmap.Source {
	src := springmap.ParseSource(s)
	if p, ok := src.IsPath(); ok && d.dir != "" && !filepath.IsAbs(p) {
		return springmap.Path(filepath.Join(d.dir, p))
	}
	return src
}

// Build creates the map, loads every layer in parallel and adds the
// controls. When some layers fail the map is still returned together with
// the joined load errors.
func Build(ctx context.Context, doc *Document, opts ...springmap.Option) (*springmap.Map, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	base := []springmap.Option{
		springmap.WithZoomRange(doc.MinZoom, doc.MaxZoom),
		springmap.WithoutLayerControl(),
	}
	if doc.Title != "" {
		base = append(base, springmap.WithTitle(doc.Title))
	}
	if doc.Options != nil {
		base = append(base, springmap.WithOptions(doc.Options))
	}
	if doc.TileServer != "" {
		base = append(base, springmap.WithTileServer(doc.TileServer))
	}
	if doc.ImageSize > 0 {
		base = append(base, springmap.WithImageMaxSize(doc.ImageSize))
	}

	m, err := springmap.New(springmap.LatLng{Lat: doc.Center[0], Lon: doc.Center[1]}, doc.Zoom, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	if doc.Basemap != "" {
		if _, err := m.AddBasemap(doc.Basemap); err != nil {
			return nil, err
		}
	}

	_, loadErr := m.LoadLayers(ctx, doc.Specs(), doc.Workers)

	controls := doc.Controls
	if len(controls) == 0 {
		controls = []Control{{Type: "layers"}}
	}
	for _, c := range controls {
		if err := addControl(m, c); err != nil {
			return nil, err
		}
	}
	return m, loadErr
}

func addControl(m *springmap.Map, c Control) error {
	switch c.Type {
	case "layers":
		_, err := m.AddLayerControl(position(c.Position, springmap.PositionTopRight))
		return err
	case "zoom_slider":
		_, err := m.AddZoomSlider(position(c.Position, springmap.PositionTopLeft))
		return err
	case "basemap_selector":
		_, err := m.AddBasemapSelector(position(c.Position, springmap.PositionBottomLeft), c.Basemaps...)
		return err
	default:
		return fmt.Errorf("%w: unknown control type %q", ErrInvalid, c.Type)
	}
}

func position(p, fallback string) string {
	if p == "" {
		return fallback
	}
	return p
}
