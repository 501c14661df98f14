package mapconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

const parksJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"Centennial"},"geometry":{"type":"Point","coordinates":[-86.81,36.14]}}]}`

const nashvilleYAML = `
title: Nashville
center: [36.16, -86.78]
zoom: 11
max_zoom: 18
basemap: cartodb.positron
options:
  scrollWheelZoom: false
layers:
  - name: Parks
    type: geojson
    source: parks.geojson
    style:
      color: "#2a9d8f"
      fillOpacity: 0.4
    tooltip: name
    popup: true
  - name: Hillshade
    type: tiles
    url: https://tiles.example.com/{z}/{x}/{y}.png
    opacity: 0.5
controls:
  - type: layers
  - type: zoom_slider
    position: topleft
  - type: basemap_selector
    basemaps: [cartodb.positron, openstreetmap]
`

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parks.geojson"), []byte(parksJSON), 0o600))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	doc, err := Load(writeDoc(t, "map.yaml", nashvilleYAML))
	require.NoError(t, err)

	assert.Equal(t, "Nashville", doc.Title)
	assert.Equal(t, []float64{36.16, -86.78}, doc.Center)
	assert.Equal(t, 11, doc.Zoom)
	assert.Equal(t, springmap.DefaultMinZoom, doc.MinZoom)
	assert.Equal(t, 18, doc.MaxZoom)
	assert.Equal(t, false, doc.Options["scrollWheelZoom"])
	require.Len(t, doc.Layers, 2)
	assert.Equal(t, 0.4, doc.Layers[0].Style["fillOpacity"], "Leaflet option names keep their case")
	require.Len(t, doc.Controls, 3)
	assert.Equal(t, []string{"cartodb.positron", "openstreetmap"}, doc.Controls[2].Basemaps)
}

func TestReadJSONAndTOML(t *testing.T) {
	doc, err := Read(strings.NewReader(`{"center": [52.37, 9.73], "layers": [{"type": "basemap", "source": "osm"}]}`), "json")
	require.NoError(t, err)
	assert.Equal(t, springmap.DefaultZoom, doc.Zoom)
	require.Len(t, doc.Layers, 1)

	doc, err = Read(strings.NewReader("title = \"Hannover\"\ncenter = [52.37, 9.73]\nzoom = 12\n"), "toml")
	require.NoError(t, err)
	assert.Equal(t, "Hannover", doc.Title)
	assert.Equal(t, 12, doc.Zoom)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"center", "center: [1, 2, 3]\n"},
		{"zoom range", "min_zoom: 10\nmax_zoom: 5\n"},
		{"layer type", "layers:\n  - type: heatmap\n    source: x\n"},
		{"bounds length", "layers:\n  - type: image\n    source: a.png\n    bounds: [1, 2]\n"},
		{"image without bounds", "layers:\n  - type: image\n    source: a.png\n"},
		{"tiles without url", "layers:\n  - type: tiles\n    name: x\n"},
		{"missing source", "layers:\n  - type: geojson\n"},
		{"control type", "controls:\n  - type: minimap\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.yaml), "yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestSpecsResolveRelativePaths(t *testing.T) {
	path := writeDoc(t, "map.yaml", nashvilleYAML)
	doc, err := Load(path)
	require.NoError(t, err)

	specs := doc.Specs()
	require.Len(t, specs, 2)
	p, ok := specs[0].Source.IsPath()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "parks.geojson"), p)
	assert.Len(t, specs[0].Options, 2)
	assert.Equal(t, "https://tiles.example.com/{z}/{x}/{y}.png", specs[1].Tile.URL)
	assert.Equal(t, "Hillshade", specs[1].Tile.Name)
}

func TestBuild(t *testing.T) {
	doc, err := Load(writeDoc(t, "map.yaml", nashvilleYAML))
	require.NoError(t, err)

	m, err := Build(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "Nashville", m.Title())
	assert.Equal(t, 11, m.Zoom())
	assert.Equal(t, "cartodb.positron", m.Basemap())

	layers := m.Layers()
	require.Len(t, layers, 3)
	assert.Equal(t, "CartoDB Positron", layers[0].Name())
	assert.Equal(t, "Parks", layers[1].Name())
	assert.Equal(t, "Hillshade", layers[2].Name())

	controls := m.Controls()
	require.Len(t, controls, 3)
	assert.Equal(t, springmap.ControlZoomSlider, controls[1].Kind())

	page, err := m.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, page, "Centennial")
}

func TestBuildPartialFailure(t *testing.T) {
	yaml := "layers:\n  - name: Parks\n    type: geojson\n    source: parks.geojson\n  - name: Gone\n    type: geojson\n    source: missing.geojson\n"
	doc, err := Load(writeDoc(t, "map.yml", yaml))
	require.NoError(t, err)

	m, err := Build(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, springmap.ErrFormat), "got %v", err)
	require.NotNil(t, m)
	require.Len(t, m.Layers(), 1)
	require.Len(t, m.Controls(), 1, "a layer control is added when none is configured")
}

func TestBuildUnknownBasemap(t *testing.T) {
	doc, err := Read(strings.NewReader("basemap: nope\n"), "yaml")
	require.NoError(t, err)
	_, err = Build(context.Background(), doc)
	assert.True(t, errors.Is(err, springmap.ErrUnknownBasemap))
}
