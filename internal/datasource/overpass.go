package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/springmap/internal/types"
)

// DefaultEndpoint is the public Overpass API interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// MaxQueryArea caps the bbox (in square degrees) of a single query.
const MaxQueryArea = 0.25

// ErrAreaTooLarge is returned for bounding boxes above MaxQueryArea.
var ErrAreaTooLarge = errors.New("datasource: bounding box too large for an Overpass query")

// OverpassDataSource fetches OSM features from the Overpass API
type OverpassDataSource struct {
	client     overpass.Client
	categories []Category
	logger     *slog.Logger
}

// NewOverpassDataSource creates a new Overpass data source. Empty endpoint
// and nil client select the public API and http.DefaultClient.
func NewOverpassDataSource(endpoint string, httpClient *http.Client, logger *slog.Logger) *OverpassDataSource {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// Rate limited to 1 concurrent request (API etiquette)
	client := overpass.NewWithSettings(endpoint, 1, httpClient)

	return &OverpassDataSource{
		client:     client,
		categories: AllCategories(),
		logger:     logger,
	}
}

// WithCategories restricts queries to the given categories.
func (ds *OverpassDataSource) WithCategories(categories ...Category) *OverpassDataSource {
	if len(categories) > 0 {
		ds.categories = categories
	}
	return ds
}

func (ds *OverpassDataSource) log() *slog.Logger {
	if ds.logger != nil {
		return ds.logger
	}
	return slog.Default()
}

// FetchFeatures fetches all OSM features of the configured categories that
// intersect bounds, as a FeatureCollection in EPSG:4326. Each feature carries
// its OSM tags plus "osm_id" and "category" properties.
func (ds *OverpassDataSource) FetchFeatures(ctx context.Context, bounds types.BoundingBox) (*geojson.FeatureCollection, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if area := bounds.Width() * bounds.Height(); area > MaxQueryArea {
		return nil, fmt.Errorf("%w: %.3f sq deg (max %.2f)", ErrAreaTooLarge, area, MaxQueryArea)
	}

	query := ds.buildQuery(bounds)
	ds.log().Debug("Querying Overpass", "bbox", bounds.String(), "categories", len(ds.categories))

	type queryResult struct {
		result overpass.Result
		err    error
	}
	done := make(chan queryResult, 1)

	// The client has no context support; abandon the request on cancellation
	go func() {
		result, err := ds.client.Query(query)
		done <- queryResult{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", r.err)
		}
		fc := ExtractFeatures(&r.result)
		ds.log().Debug("Overpass query complete", "features", len(fc.Features))
		return fc, nil
	}
}

// buildQuery creates an Overpass QL query for the configured categories.
// Per-element bbox filters (south,west,north,east) with "out geom" return the
// complete geometry of ways that intersect the bbox instead of clipping it.
func (ds *OverpassDataSource) buildQuery(bounds types.BoundingBox) string {
	bbox := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)

	var b strings.Builder
	b.WriteString("[out:json][timeout:60];\n(\n")
	for _, c := range ds.categories {
		for _, sel := range selectors[c] {
			fmt.Fprintf(&b, "  %s(%s);\n", sel, bbox)
		}
	}
	b.WriteString(");\nout geom;\n")
	return b.String()
}

var selectors = map[Category][]string{
	CategoryWater: {
		`way["natural"="water"]`,
		`way["natural"="coastline"]`,
		`relation["natural"="water"]`,
	},
	CategoryRiver: {
		`way["waterway"]`,
		`relation["waterway"]`,
	},
	CategoryPark: {
		`way["leisure"="park"]`,
		`way["leisure"="garden"]`,
		`way["landuse"="forest"]`,
		`way["landuse"="grass"]`,
		`way["landuse"="meadow"]`,
		`relation["leisure"="park"]`,
	},
	CategoryRoad: {
		`way["highway"]`,
	},
	CategoryBuilding: {
		`way["building"]`,
	},
	CategoryCivic: {
		`way["amenity"="school"]`,
		`way["amenity"="hospital"]`,
		`way["amenity"="university"]`,
	},
}
