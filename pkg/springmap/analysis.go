package springmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"

	gj "github.com/MeKo-Tech/springmap/internal/geojson"
	"github.com/MeKo-Tech/springmap/internal/loader"
	"github.com/MeKo-Tech/springmap/internal/overlay"
)

// OverlayOp is a polygon overlay operation.
type OverlayOp = overlay.Op

const (
	Intersection = overlay.Intersection
	Difference   = overlay.Difference
)

// ParseOverlayOp maps "intersection" or "difference" to an OverlayOp.
func ParseOverlayOp(s string) (OverlayOp, error) {
	op, err := overlay.ParseOp(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return op, nil
}

// Overlay loads a and b and computes op between every pair of overlapping
// polygons. Output features carry the attributes of both inputs; clashing
// keys get _1 and _2 suffixes. The result is in EPSG:4326.
func (m *Map) Overlay(ctx context.Context, a, b Source, op OverlayOp) (*geojson.FeatureCollection, error) {
	return overlayWith(ctx, m.loader, a, b, op)
}

// SpatialAnalysis returns the intersection of a and b as GeoJSON text.
// Non-overlapping inputs yield an empty FeatureCollection; errors yield no
// partial result.
func (m *Map) SpatialAnalysis(ctx context.Context, a, b Source) (string, error) {
	fc, err := m.Overlay(ctx, a, b, Intersection)
	if err != nil {
		return "", err
	}
	data, err := gj.Encode(fc)
	if err != nil {
		return "", loadError("spatial_analysis", "", err)
	}
	return string(data), nil
}

func overlayWith(ctx context.Context, l *loader.Loader, a, b Source, op OverlayOp) (*geojson.FeatureCollection, error) {
	const name = "spatial_analysis"

	dsA, err := l.Load(ctx, a, loader.FormatAuto)
	if err != nil {
		return nil, loadError(name, a.String(), err)
	}
	dsB, err := l.Load(ctx, b, loader.FormatAuto)
	if err != nil {
		return nil, loadError(name, b.String(), err)
	}

	fc, err := overlay.Compute(ctx, dsA.Features, dsB.Features, op)
	if errors.Is(err, overlay.ErrGeometry) {
		err = fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if err != nil {
		return nil, loadError(name, a.String()+" "+op.String()+" "+b.String(), err)
	}
	return fc, nil
}
