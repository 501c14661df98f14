package springmap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squares(names []string, polys ...orb.Polygon) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range polys {
		f := geojson.NewFeature(p)
		f.Properties["name"] = names[i]
		fc.Append(f)
	}
	return fc
}

func square(minX, minY, size float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}}
}

func TestSpatialAnalysis(t *testing.T) {
	m := newTestMap(t)
	counties := squares([]string{"davidson"}, square(-87, 36, 0.4))
	zones := squares([]string{"flood"}, square(-86.8, 36.2, 0.4))

	out, err := m.SpatialAnalysis(context.Background(), Data(counties), Data(zones))
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection([]byte(out))
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "davidson", f.Properties["name_1"])
	assert.Equal(t, "flood", f.Properties["name_2"])

	b := f.Geometry.Bound()
	const eps = 1e-9
	assert.InDelta(t, -86.8, b.Min.Lon(), eps)
	assert.InDelta(t, 36.2, b.Min.Lat(), eps)
	assert.InDelta(t, -86.6, b.Max.Lon(), eps)
	assert.InDelta(t, 36.4, b.Max.Lat(), eps)
	assert.Empty(t, m.Layers(), "analysis does not touch the map")
}

func TestSpatialAnalysisDisjoint(t *testing.T) {
	m := newTestMap(t)
	out, err := m.SpatialAnalysis(context.Background(),
		Data(squares([]string{"a"}, square(0, 0, 1))),
		Data(squares([]string{"b"}, square(5, 5, 1))))
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection([]byte(out))
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}

func TestSpatialAnalysisErrors(t *testing.T) {
	m := newTestMap(t)
	good := Data(squares([]string{"a"}, square(0, 0, 1)))

	out, err := m.SpatialAnalysis(context.Background(), good, Data("{broken"))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
	assert.Empty(t, out)

	points := Data(parksJSON)
	_, err = m.SpatialAnalysis(context.Background(), good, points)
	assert.True(t, errors.Is(err, ErrFormat), "point inputs are rejected, got %v", err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "spatial_analysis", le.Op)
}

func TestOverlayDifference(t *testing.T) {
	m := newTestMap(t)
	op, err := ParseOverlayOp("difference")
	require.NoError(t, err)

	fc, err := m.Overlay(context.Background(),
		Data(squares([]string{"a"}, square(0, 0, 2))),
		Data(squares([]string{"b"}, square(1, 0, 2))), op)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	b := fc.Features[0].Geometry.Bound()
	assert.InDelta(t, 0, b.Min.Lon(), 1e-9)
	assert.InDelta(t, 1, b.Max.Lon(), 1e-9)

	_, err = ParseOverlayOp("union")
	assert.True(t, errors.Is(err, ErrConfig))
}

const overpassResponse = `{
  "version": 0.6,
  "elements": [
    {"type": "way", "id": 11, "tags": {"leisure": "park", "name": "Centennial Park"},
     "geometry": [{"lat": 36.14, "lon": -86.81}, {"lat": 36.14, "lon": -86.80}, {"lat": 36.15, "lon": -86.80}, {"lat": 36.14, "lon": -86.81}]},
    {"type": "way", "id": 12, "tags": {"highway": "primary", "name": "West End Ave"},
     "geometry": [{"lat": 36.15, "lon": -86.81}, {"lat": 36.15, "lon": -86.79}]}
  ]
}`

func TestAddOSM(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(overpassResponse))
	}))
	defer srv.Close()

	m := newTestMap(t, WithOverpass(srv.URL, srv.Client()))
	bbox := BoundingBox{MinLon: -86.82, MinLat: 36.13, MaxLon: -86.78, MaxLat: 36.16}

	layer, err := m.AddOSM(context.Background(), bbox, "", StyleMap{"color": "green"}, "park", "road")
	require.NoError(t, err)
	assert.Equal(t, "OpenStreetMap", layer.Name())
	assert.Equal(t, "overpass:"+bbox.String(), layer.Source())
	assert.Equal(t, 2, layer.Len())
	assert.EqualValues(t, 1, hits.Load())

	_, err = m.AddOSM(context.Background(), bbox, "x", nil, "volcanoes")
	assert.True(t, errors.Is(err, ErrConfig), "got %v", err)

	huge := BoundingBox{MinLon: -100, MinLat: 30, MaxLon: -80, MaxLat: 40}
	_, err = m.AddOSM(context.Background(), huge, "x", nil)
	assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
	assert.EqualValues(t, 1, hits.Load(), "rejected queries never reach the server")
	assert.Len(t, m.Layers(), 1)
}

func TestAddOSMServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := newTestMap(t, WithOverpass(srv.URL, srv.Client()))
	bbox := BoundingBox{MinLon: -86.82, MinLat: 36.13, MaxLon: -86.78, MaxLat: 36.16}
	_, err := m.AddOSM(context.Background(), bbox, "x", nil)
	assert.True(t, errors.Is(err, ErrFetch), "got %v", err)
	assert.Empty(t, m.Layers())
}
