package tile

import (
	"testing"
)

func TestCoordsString(t *testing.T) {
	tests := []struct {
		coords   Coords
		expected string
	}{
		{Coords{Z: 13, X: 4297, Y: 2754}, "13/4297/2754"},
		{Coords{Z: 0, X: 0, Y: 0}, "0/0/0"},
		{Coords{Z: 18, X: 12345, Y: 67890}, "18/12345/67890"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.coords.String()
			if result != tt.expected {
				t.Errorf("String() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestCoordsBounds(t *testing.T) {
	// Tile covering Nashville at z7
	coords := Coords{Z: 7, X: 33, Y: 50}
	bounds := coords.Bounds()

	t.Logf("Tile %s bounds: [%.6f, %.6f, %.6f, %.6f]",
		coords.String(), bounds[0], bounds[1], bounds[2], bounds[3])

	if bounds[0] >= bounds[2] {
		t.Errorf("minLon (%f) should be < maxLon (%f)", bounds[0], bounds[2])
	}
	if bounds[1] >= bounds[3] {
		t.Errorf("minLat (%f) should be < maxLat (%f)", bounds[1], bounds[3])
	}
	if bounds[0] > -86.46 || bounds[2] < -86.46 {
		t.Errorf("tile should contain longitude -86.46, got [%f, %f]", bounds[0], bounds[2])
	}
	if bounds[1] > 35.52 || bounds[3] < 35.52 {
		t.Errorf("tile should contain latitude 35.52, got [%f, %f]", bounds[1], bounds[3])
	}
}

func TestParseCoords(t *testing.T) {
	tests := []struct {
		input   string
		want    Coords
		wantErr bool
	}{
		{"13/4297/2754", Coords{Z: 13, X: 4297, Y: 2754}, false},
		{"0/0/0", Coords{}, false},
		{"0/1/0", Coords{}, true},
		{"13/4297", Coords{}, true},
		{"a/b/c", Coords{}, true},
		{"-1/0/0", Coords{}, true},
		{"", Coords{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCoords(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseCoords(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCoords(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCoords(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	c := NewCoords(3, 2, 1)

	tests := []struct {
		template  string
		subdomain string
		want      string
	}{
		{"https://tile.openstreetmap.org/{z}/{x}/{y}.png", "", "https://tile.openstreetmap.org/3/2/1.png"},
		{"https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png", "a", "https://a.basemaps.cartocdn.com/dark_all/3/2/1.png"},
		{"https://example.com/tms/{z}/{x}/{-y}.png", "", "https://example.com/tms/3/2/6.png"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			if got := Expand(tt.template, c, tt.subdomain); got != tt.want {
				t.Errorf("Expand() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTileCount(t *testing.T) {
	// Whole world at z0 is a single tile, z1 four tiles.
	world := [4]float64{-179.9, -85, 179.9, 85}
	if got := TileCount(world, 0, 0); got != 1 {
		t.Errorf("TileCount z0 = %d, want 1", got)
	}
	if got := TileCount(world, 0, 1); got != 5 {
		t.Errorf("TileCount z0-1 = %d, want 5", got)
	}
}

func TestFitZoom(t *testing.T) {
	world := [4]float64{-179.9, -85, 179.9, 85}
	if got := FitZoom(world, 1, 1, 0, 18); got != 0 {
		t.Errorf("FitZoom(world, 1x1) = %d, want 0", got)
	}
	if got := FitZoom(world, 4, 4, 0, 18); got != 2 {
		t.Errorf("FitZoom(world, 4x4) = %d, want 2", got)
	}

	small := [4]float64{-86.80, 36.15, -86.76, 36.17}
	z := FitZoom(small, 4, 3, 0, 18)
	if z < 10 {
		t.Errorf("FitZoom(small) = %d, expected a city-level zoom", z)
	}
	if TileCount(small, z, z) > 12 {
		t.Errorf("bbox does not fit into 4x3 tiles at z%d", z)
	}
}

func TestCover(t *testing.T) {
	world := [4]float64{-179.9, -85, 179.9, 85}
	tiles := Cover(world, 0, 1)
	if len(tiles) != 5 {
		t.Fatalf("Cover z0-1 returned %d tiles, want 5", len(tiles))
	}
	if tiles[0] != (Coords{}) {
		t.Errorf("first tile = %s, want 0/0/0", tiles[0])
	}
	want := []Coords{{1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1}}
	for i, c := range want {
		if tiles[i+1] != c {
			t.Errorf("tile %d = %s, want %s", i+1, tiles[i+1], c)
		}
	}

	small := [4]float64{9.70, 52.30, 9.72, 52.31}
	for _, c := range Cover(small, 12, 14) {
		if !c.Valid() {
			t.Errorf("invalid tile %s", c)
		}
		b := c.Bounds()
		if b[2] < small[0] || b[0] > small[2] || b[3] < small[1] || b[1] > small[3] {
			t.Errorf("tile %s does not touch bbox", c)
		}
	}
}
