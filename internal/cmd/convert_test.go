package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/springmap/internal/tile"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [4]float64
		wantErr bool
	}{
		{
			name:    "valid bbox",
			input:   "9.7,52.3,9.9,52.4",
			want:    [4]float64{9.7, 52.3, 9.9, 52.4},
			wantErr: false,
		},
		{
			name:    "valid bbox with spaces",
			input:   "9.7, 52.3, 9.9, 52.4",
			want:    [4]float64{9.7, 52.3, 9.9, 52.4},
			wantErr: false,
		},
		{
			name:    "negative coordinates",
			input:   "-122.5,37.7,-122.3,37.9",
			want:    [4]float64{-122.5, 37.7, -122.3, 37.9},
			wantErr: false,
		},
		{
			name:    "too few values",
			input:   "9.7,52.3,9.9",
			wantErr: true,
		},
		{
			name:    "too many values",
			input:   "9.7,52.3,9.9,52.4,10.0",
			wantErr: true,
		},
		{
			name:    "invalid number",
			input:   "abc,52.3,9.9,52.4",
			wantErr: true,
		},
		{
			name:    "minLon >= maxLon",
			input:   "10.0,52.3,9.9,52.4",
			wantErr: true,
		},
		{
			name:    "minLat >= maxLat",
			input:   "9.7,52.5,9.9,52.4",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBBox(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseBBox(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseBBox(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.want {
				t.Errorf("parseBBox(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func writeTileFile(t *testing.T, dir, rel string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"+rel), 0o600))
}

func TestScanTilesDirectory(t *testing.T) {
	initLogging()
	dir := t.TempDir()
	writeTileFile(t, dir, "z3_x2_y3.png")
	writeTileFile(t, dir, "z3_x2_y4@2x.png")
	writeTileFile(t, dir, "4/5/6.png")
	writeTileFile(t, dir, "4/5/7.jpeg")
	writeTileFile(t, dir, "README.md")
	writeTileFile(t, dir, "z1_x9_y0.png") // outside the grid

	tiles, err := scanTilesDirectory(dir)
	require.NoError(t, err)
	require.Len(t, tiles, 4)

	var got []string
	for _, ft := range tiles {
		got = append(got, ft.coords.String()+"."+ft.format)
	}
	assert.ElementsMatch(t, []string{"3/2/3.png", "3/2/4.png", "4/5/6.png", "4/5/7.jpg"}, got)
}

func TestTilesetMetadata(t *testing.T) {
	tiles := []folderTile{
		{coords: tile.NewCoords(2, 1, 1), format: "png"},
		{coords: tile.NewCoords(3, 4, 3), format: "png"},
		{coords: tile.NewCoords(3, 5, 3), format: "jpg"},
	}
	meta := tilesetMetadata(tiles)

	assert.Equal(t, 2, meta.MinZoom)
	assert.Equal(t, 3, meta.MaxZoom)
	assert.Equal(t, "png", meta.Format)
	assert.InDelta(t, -90.0, meta.Bounds[0], 1e-9)
	assert.InDelta(t, 90.0, meta.Bounds[2], 1e-9)
	assert.Less(t, meta.Bounds[1], meta.Bounds[3])
	assert.Equal(t, 2.0, meta.Center[2])
}
