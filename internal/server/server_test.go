package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/springmap/internal/mbtiles"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func writeMBTiles(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.mbtiles")
	w, err := mbtiles.Create(path, mbtiles.Metadata{Name: "Scan", Format: "png"}, mbtiles.WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WriteTile(tile.NewCoords(3, 2, 3), pngHeader))
	require.NoError(t, w.Close())
	return path
}

type fixture struct {
	srv     *httptest.Server
	vector  *springmap.VectorLayer
	raster  *springmap.RasterLayer
	basemap *springmap.TileLayer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m, vl := newVectorMap(t)
	bm, err := m.AddBasemap("cartodb.positron")
	require.NoError(t, err)
	rl, err := m.AddRaster(writeMBTiles(t), "Scan", 0.7)
	require.NoError(t, err)

	s, err := New(m, Config{CacheControl: "max-age=30"}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, s.Close())
	})
	return fixture{srv: srv, vector: vl, raster: rl, basemap: bm}
}

func (f fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestNewRejectsNilMap(t *testing.T) {
	_, err := New(nil, Config{}, nil)
	assert.Error(t, err)
}

func TestPage(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "leaflet")
	assert.Contains(t, string(body), "/tiles/"+f.raster.ID()+"/{z}/{x}/{y}.png")
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestLayersAPI(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/api/layers")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var layers []layerInfo
	require.NoError(t, json.Unmarshal(body, &layers))
	require.Len(t, layers, 3)

	byID := map[string]layerInfo{}
	for _, l := range layers {
		byID[l.ID] = l
	}
	assert.Equal(t, "/layers/"+f.vector.ID()+".geojson", byID[f.vector.ID()].GeoJSON)
	assert.Equal(t, "/render/"+f.vector.ID()+"/{z}/{x}/{y}.png", byID[f.vector.ID()].Tiles)
	assert.Equal(t, "/tiles/"+f.raster.ID()+"/{z}/{x}/{y}.png", byID[f.raster.ID()].Tiles)
	assert.Empty(t, byID[f.basemap.ID()].Tiles)
}

func TestGeoJSON(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/layers/"+f.vector.ID()+".geojson")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `"square"`)

	resp, _ = f.get(t, "/layers/"+f.raster.ID()+".geojson")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.get(t, "/layers/missing.geojson")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRasterTiles(t *testing.T) {
	f := newFixture(t)
	base := "/tiles/" + f.raster.ID()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"stored", "/3/2/3.png", http.StatusOK},
		{"retina suffix", "/3/2/3@2x.png", http.StatusOK},
		{"missing", "/3/1/1.png", http.StatusNoContent},
		{"outside grid", "/3/9/1.png", http.StatusNotFound},
		{"not a number", "/3/a/1.png", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.get(t, base+tt.path)
			require.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
			if tt.status == http.StatusOK {
				assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
				assert.Equal(t, "max-age=30", resp.Header.Get("Cache-Control"))
				assert.Equal(t, pngHeader, body)
			}
		})
	}

	resp, _ := f.get(t, "/tiles/"+f.vector.ID()+"/3/2/3.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRenderedTilesAndStatus(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/render/"+f.vector.ID()+"/1/1/1.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body)

	resp, body = f.get(t, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status TileStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, int64(1), status.TotalRendered)
	assert.Equal(t, 1, status.MaxConcurrent)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{
		"/tiles/" + f.raster.ID() + "/3/2/3.png",
		"/render/" + f.vector.ID() + "/1/1/1.png",
	} {
		req, err := http.NewRequest(http.MethodOptions, f.srv.URL+path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
		assert.Equal(t, "GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	}
}
