package springmap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayersKeepsSpecOrder(t *testing.T) {
	m := newTestMap(t)
	specs := []LayerSpec{
		{Type: SpecBasemap, Basemap: "cartodb.positron"},
		{Type: SpecGeoJSON, Name: "Parks", Source: Data(parksJSON), Style: StyleMap{"color": "red"}},
		{Type: SpecCSV, Name: "Cities", Source: Data("name,lat,lon\nNashville,36.16,-86.78\n")},
		{Type: SpecTiles, Tile: TileSource{Name: "Hillshade", URL: "https://t.example.com/{z}/{x}/{y}.png"}},
		{Type: SpecVector, Name: "Stations", Source: Data(mercatorJSON)},
	}

	layers, err := m.LoadLayers(context.Background(), specs, 4)
	require.NoError(t, err)
	require.Len(t, layers, len(specs))

	names := make([]string, 0, len(layers))
	for _, l := range m.Layers() {
		names = append(names, l.Name())
	}
	assert.Equal(t, []string{"CartoDB Positron", "Parks", "Cities", "Hillshade", "Stations"}, names)
	assert.Equal(t, "cartodb.positron", m.Basemap())
}

func TestLoadLayersJoinsErrors(t *testing.T) {
	m := newTestMap(t)
	specs := []LayerSpec{
		{Type: SpecGeoJSON, Name: "Broken", Source: Data("{nope")},
		{Type: SpecGeoJSON, Name: "Parks", Source: Data(parksJSON)},
		{Type: SpecBasemap, Basemap: "nope"},
		{Type: "heatmap", Name: "Unknown"},
		{Type: SpecRaster, Name: "Scan", Source: Path("scan.mbtiles")},
	}

	layers, err := m.LoadLayers(context.Background(), specs, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))
	assert.True(t, errors.Is(err, ErrUnknownBasemap))
	assert.True(t, errors.Is(err, ErrConfig))
	assert.True(t, errors.Is(err, ErrRasterUnsupported))

	require.Len(t, layers, 1)
	assert.Equal(t, "Parks", layers[0].Name())
	assert.Len(t, m.Layers(), 1, "successful layers stay attached")
}

func TestLoadLayersCancelled(t *testing.T) {
	m := newTestMap(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	layers, err := m.LoadLayers(ctx, []LayerSpec{{Type: SpecGeoJSON, Source: Data(parksJSON)}}, 1)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Empty(t, layers)
	assert.Empty(t, m.Layers())
}

func TestPrepareImageAndOSMSpecs(t *testing.T) {
	m := newTestMap(t)
	bounds := BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}

	layer, err := m.Prepare(context.Background(), LayerSpec{Type: "IMAGE", Name: "Scan", Source: Path(writePNG(t, 4, 4)), Bounds: bounds})
	require.NoError(t, err)
	assert.Equal(t, KindImage, layer.Kind())
	assert.Empty(t, m.Layers(), "Prepare does not attach")

	_, err = m.Prepare(context.Background(), LayerSpec{Type: SpecOSM, Bounds: bounds, Categories: []string{"lava"}})
	assert.True(t, errors.Is(err, ErrConfig))
}
