package springmap

import (
	"context"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/springmap/internal/loader"
)

// Source is a layer data location: a file path, an http(s) URL or an
// in-memory value ([]byte, string, map[string]any, []any,
// *geojson.FeatureCollection, *geojson.Feature, orb.Geometry).
type Source = loader.Source

// Path is a local file source.
func Path(p string) Source { return loader.Path(p) }

// URL is a remote source fetched with HTTP GET.
func URL(u string) Source { return loader.URL(u) }

// Data is an in-memory source.
func Data(v any) Source { return loader.Data(v) }

// ParseSource treats http(s) strings as URLs and everything else as paths.
func ParseSource(s string) Source { return loader.Parse(s) }

// Default icon size for WithMarkerIcon.
const (
	DefaultIconWidth  = 20
	DefaultIconHeight = 20
)

type vectorConfig struct {
	icon    *MarkerIcon
	tooltip string
	popup   bool
}

// VectorOption tunes a vector layer.
type VectorOption func(*vectorConfig)

// WithMarkerIcon draws point features as 20x20 markers using the image at
// url, with the "name" attribute as tooltip unless WithTooltip is given.
func WithMarkerIcon(url string) VectorOption {
	return func(c *vectorConfig) {
		c.icon = &MarkerIcon{URL: url, Width: DefaultIconWidth, Height: DefaultIconHeight}
	}
}

// WithTooltip shows the given attribute when hovering a feature.
func WithTooltip(property string) VectorOption {
	return func(c *vectorConfig) { c.tooltip = property }
}

// WithPopup shows a table of all attributes when clicking a feature.
func WithPopup() VectorOption {
	return func(c *vectorConfig) { c.popup = true }
}

func (m *Map) prepareVector(ctx context.Context, op string, src Source, format loader.Format, name string, style Styler, opts []VectorOption) (*VectorLayer, error) {
	ds, err := m.loader.Load(ctx, src, format)
	if err != nil {
		return nil, loadError(op, src.String(), err)
	}

	var cfg vectorConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.icon != nil && cfg.tooltip == "" && hasProperty(ds.Features, "name") {
		cfg.tooltip = "name"
	}
	if cfg.icon != nil && strings.TrimSpace(cfg.icon.URL) == "" {
		return nil, loadError(op, src.String(), ErrConfig)
	}

	styles, err := resolveStyles(ds.Features, style)
	if err != nil {
		return nil, loadError(op, src.String(), err)
	}

	layer := &VectorLayer{
		id:       newID(),
		name:     name,
		source:   src.String(),
		features: ds.Features,
		styles:   styles,
		icon:     cfg.icon,
		tooltip:  cfg.tooltip,
		popup:    cfg.popup,
	}
	m.log().Info("Loaded vector layer",
		"name", name,
		"source", layer.source,
		"format", ds.Format.String(),
		"crs", ds.CRS.String(),
		"features", layer.Len(),
	)
	return layer, nil
}

func (m *Map) attachVector(layer *VectorLayer, err error) (*VectorLayer, error) {
	if err != nil {
		return nil, err
	}
	if err := m.Attach(layer); err != nil {
		return nil, err
	}
	return layer, nil
}

// PrepareVector loads src (format detected from extension and content) and
// returns a layer without attaching it.
func (m *Map) PrepareVector(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.prepareVector(ctx, "add_vector", src, loader.FormatAuto, defaultName(name, "Vector Layer"), style, opts)
}

// AddVector loads GeoJSON, a shapefile (.shp or .zip) or CSV and attaches it.
func (m *Map) AddVector(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.attachVector(m.PrepareVector(ctx, src, name, style, opts...))
}

// PrepareGeoJSON loads GeoJSON without attaching it.
func (m *Map) PrepareGeoJSON(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.prepareVector(ctx, "add_data_layer", src, loader.FormatGeoJSON, defaultName(name, "Data Layer"), style, opts)
}

// AddGeoJSON loads GeoJSON, reprojects it to EPSG:4326 and attaches it. On
// error the map is unchanged.
func (m *Map) AddGeoJSON(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.attachVector(m.PrepareGeoJSON(ctx, src, name, style, opts...))
}

// PrepareShapefile loads a shapefile without attaching it.
func (m *Map) PrepareShapefile(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.prepareVector(ctx, "add_shp", src, loader.FormatShapefile, defaultName(name, "shp"), style, opts)
}

// AddShapefile loads a local or remote shapefile (.shp with its .dbf and
// .prj siblings, or a .zip archive) and attaches it. On error the map is
// unchanged.
func (m *Map) AddShapefile(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.attachVector(m.PrepareShapefile(ctx, src, name, style, opts...))
}

// PrepareCSV loads a CSV point file without attaching it.
func (m *Map) PrepareCSV(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.prepareVector(ctx, "add_csv", src, loader.FormatCSV, defaultName(name, "Points"), style, opts)
}

// AddCSV loads a CSV file with latitude and longitude columns as points.
func (m *Map) AddCSV(ctx context.Context, src Source, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.attachVector(m.PrepareCSV(ctx, src, name, style, opts...))
}

// AddFeatures attaches an in-memory collection already in EPSG:4326.
func (m *Map) AddFeatures(fc *geojson.FeatureCollection, name string, style Styler, opts ...VectorOption) (*VectorLayer, error) {
	return m.AddGeoJSON(context.Background(), Data(fc), name, style, opts...)
}

func hasProperty(fc *geojson.FeatureCollection, key string) bool {
	for _, f := range fc.Features {
		if _, ok := f.Geometry.(orb.Point); !ok {
			continue
		}
		if _, ok := f.Properties[key]; ok {
			return true
		}
	}
	return false
}

func defaultName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
