// Package render turns a map description into a standalone Leaflet HTML page.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
)

// LeafletVersion is the Leaflet release the page loads.
const LeafletVersion = "1.9.4"

// ErrInvalid is returned for documents that cannot be rendered.
var ErrInvalid = errors.New("render: invalid document")

// Layer kinds understood by the page script.
const (
	KindTile    = "tile"
	KindGeoJSON = "geojson"
	KindImage   = "image"
)

// Control kinds understood by the page script.
const (
	ControlLayers          = "layers"
	ControlZoomSlider      = "zoom_slider"
	ControlBasemapSelector = "basemap_selector"
)

// Document is everything the page needs.
type Document struct {
	Title    string
	Center   [2]float64 // lat, lon
	Zoom     int
	MinZoom  int
	MaxZoom  int
	Options  map[string]any // passed to L.map
	Layers   []Layer
	Controls []Control
}

// Layer is one Leaflet layer.
type Layer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Basemap bool   `json:"basemap,omitempty"`
	Active  bool   `json:"active,omitempty"` // the basemap shown initially

	// Tile layers
	URL         string   `json:"url,omitempty"`
	Attribution string   `json:"attribution,omitempty"`
	MaxZoom     int      `json:"maxZoom,omitempty"`
	Subdomains  []string `json:"subdomains,omitempty"`
	TMS         bool     `json:"tms,omitempty"`

	// GeoJSON layers
	Data    json.RawMessage  `json:"data,omitempty"`
	Styles  []map[string]any `json:"styles,omitempty"` // one per feature
	Icon    *Icon            `json:"icon,omitempty"`
	Tooltip string           `json:"tooltip,omitempty"` // property shown on hover
	Popup   bool             `json:"popup,omitempty"`   // property table on click

	// Image overlays; Bounds is [[south, west], [north, east]]
	Image  string         `json:"image,omitempty"`
	Bounds *[2][2]float64 `json:"bounds,omitempty"`

	Opacity float64 `json:"opacity,omitempty"`
}

// Icon is a marker icon for point features.
type Icon struct {
	URL  string `json:"url"`
	Size [2]int `json:"size"`
}

// Option is a selectable basemap in a selector control.
type Option struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Attribution string   `json:"attribution,omitempty"`
	MaxZoom     int      `json:"maxZoom,omitempty"`
	Subdomains  []string `json:"subdomains,omitempty"`
}

// Control is one UI control.
type Control struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Position string   `json:"position"`
	Options  []Option `json:"options,omitempty"`
	Selected string   `json:"selected,omitempty"`
}

type pageConfig struct {
	Center   [2]float64     `json:"center"`
	Zoom     int            `json:"zoom"`
	MinZoom  int            `json:"minZoom"`
	MaxZoom  int            `json:"maxZoom"`
	Options  map[string]any `json:"options"`
	Layers   []Layer        `json:"layers"`
	Controls []Control      `json:"controls"`
}

// Validate checks what the page script relies on.
func (d Document) Validate() error {
	if d.MinZoom > d.MaxZoom {
		return fmt.Errorf("%w: min zoom %d > max zoom %d", ErrInvalid, d.MinZoom, d.MaxZoom)
	}
	seen := make(map[string]bool, len(d.Layers))
	for _, l := range d.Layers {
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate layer id %q", ErrInvalid, l.ID)
		}
		seen[l.ID] = true

		switch l.Kind {
		case KindTile:
			if l.URL == "" {
				return fmt.Errorf("%w: tile layer %q has no URL", ErrInvalid, l.Name)
			}
		case KindGeoJSON:
			if len(l.Data) == 0 {
				return fmt.Errorf("%w: GeoJSON layer %q has no data", ErrInvalid, l.Name)
			}
		case KindImage:
			if l.Image == "" || l.Bounds == nil {
				return fmt.Errorf("%w: image overlay %q needs an image and bounds", ErrInvalid, l.Name)
			}
		default:
			return fmt.Errorf("%w: layer %q has unknown kind %q", ErrInvalid, l.Name, l.Kind)
		}
	}
	for _, c := range d.Controls {
		switch c.Kind {
		case ControlLayers, ControlZoomSlider, ControlBasemapSelector:
		default:
			return fmt.Errorf("%w: unknown control kind %q", ErrInvalid, c.Kind)
		}
	}
	return nil
}

func (d Document) config() ([]byte, error) {
	cfg := pageConfig{
		Center:   d.Center,
		Zoom:     d.Zoom,
		MinZoom:  d.MinZoom,
		MaxZoom:  d.MaxZoom,
		Options:  d.Options,
		Layers:   d.Layers,
		Controls: d.Controls,
	}
	if cfg.Options == nil {
		cfg.Options = map[string]any{}
	}
	if cfg.Layers == nil {
		cfg.Layers = []Layer{}
	}
	if cfg.Controls == nil {
		cfg.Controls = []Control{}
	}

	// json.Marshal escapes <, > and & so the result is safe inside <script>
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal page config: %w", err)
	}
	return data, nil
}
