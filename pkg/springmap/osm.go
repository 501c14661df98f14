package springmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/springmap/internal/datasource"
	"github.com/MeKo-Tech/springmap/internal/loader"
)

// OSMCategories lists the feature categories AddOSM understands.
func OSMCategories() []string {
	cats := datasource.AllCategories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

// PrepareOSM queries the Overpass API for OpenStreetMap features inside
// bbox. Without categories every category is fetched. Each feature carries
// its OSM tags plus "osm_id" and "category".
func (m *Map) PrepareOSM(ctx context.Context, bbox BoundingBox, name string, style Styler, categories ...string) (*VectorLayer, error) {
	const op = "add_osm"
	source := "overpass:" + bbox.String()

	cats := make([]datasource.Category, 0, len(categories))
	for _, c := range categories {
		cat, err := datasource.ParseCategory(c)
		if err != nil {
			return nil, loadError(op, source, fmt.Errorf("%w: %v", ErrConfig, err))
		}
		cats = append(cats, cat)
	}
	if err := bbox.Validate(); err != nil {
		return nil, loadError(op, source, fmt.Errorf("%w: %v", ErrConfig, err))
	}

	ds := datasource.NewOverpassDataSource(m.overpassEndpoint, m.httpClient, m.logger).WithCategories(cats...)
	fc, err := ds.FetchFeatures(ctx, bbox)
	switch {
	case err == nil:
	case errors.Is(err, datasource.ErrAreaTooLarge):
		return nil, loadError(op, source, fmt.Errorf("%w: %w", ErrConfig, err))
	case ctx.Err() != nil:
		return nil, loadError(op, source, err)
	default:
		return nil, loadError(op, source, fmt.Errorf("%w: %w", ErrFetch, err))
	}

	// Overpass output is always WGS84; the loader still validates it.
	layer, err := m.prepareVector(ctx, op, Data(fc), loader.FormatGeoJSON, defaultName(name, "OpenStreetMap"), style, nil)
	if err != nil {
		return nil, err
	}
	layer.source = source
	return layer, nil
}

// AddOSM fetches OpenStreetMap features inside bbox and attaches them.
func (m *Map) AddOSM(ctx context.Context, bbox BoundingBox, name string, style Styler, categories ...string) (*VectorLayer, error) {
	return m.attachVector(m.PrepareOSM(ctx, bbox, name, style, categories...))
}
