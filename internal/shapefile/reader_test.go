package shapefile

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// writeCounties writes a two-record polygon shapefile; the first record has a hole.
func writeCounties(t *testing.T, dir string, withDBF bool) string {
	t.Helper()

	path := filepath.Join(dir, "counties.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	if withDBF {
		w.SetFields([]shp.Field{
			shp.StringField("NAME", 20),
			shp.NumberField("POP", 10),
		})
	}

	square := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}},
		{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}, {X: 0.25, Y: 0.75}, {X: 0.25, Y: 0.25}},
	}))
	strip := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 2, Y: 0}, {X: 2, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 0}, {X: 2, Y: 0}},
	}))

	w.Write(&square)
	w.Write(&strip)
	if withDBF {
		require.NoError(t, w.WriteAttribute(0, 0, "Davidson"))
		require.NoError(t, w.WriteAttribute(0, 1, 715884))
		require.NoError(t, w.WriteAttribute(1, 0, "Rutherford"))
		require.NoError(t, w.WriteAttribute(1, 1, 341486))
	}
	w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "counties.prj"), []byte(wgs84PRJ), 0o600))
	return path
}

func zipDir(t *testing.T, dir, base string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), base+".zip")
	f, err := os.Create(out)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		data, err := os.ReadFile(filepath.Join(dir, base+ext))
		require.NoError(t, err)
		w, err := zw.Create(base + ext)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return out
}

func TestReadShp(t *testing.T) {
	path := writeCounties(t, t.TempDir(), true)

	ds, err := Read(path)
	require.NoError(t, err)
	require.Len(t, ds.Features.Features, 2)
	assert.Equal(t, "Polygon", ds.ShapeType)
	assert.Contains(t, ds.Projection, "GCS_WGS_1984")

	first := ds.Features.Features[0]
	assert.Equal(t, "Davidson", first.Properties["NAME"])
	assert.Equal(t, int64(715884), first.Properties["POP"])

	poly, ok := first.Geometry.(orb.Polygon)
	require.True(t, ok, "got %T", first.Geometry)
	require.Len(t, poly, 2, "hole must stay with its outer ring")
	assert.Equal(t, orb.CCW, poly[0].Orientation())
	assert.Equal(t, orb.CW, poly[1].Orientation())

	assert.Equal(t, "Rutherford", ds.Features.Features[1].Properties["NAME"])
}

func TestReadShpWithoutDBF(t *testing.T) {
	dir := t.TempDir()
	path := writeCounties(t, dir, false)
	_ = os.Remove(filepath.Join(dir, "counties.dbf"))

	ds, err := Read(path)
	require.NoError(t, err)
	require.Len(t, ds.Features.Features, 2)
	assert.Empty(t, ds.Features.Features[0].Properties)
}

func TestReadZip(t *testing.T) {
	dir := t.TempDir()
	writeCounties(t, dir, true)
	archive := zipDir(t, dir, "counties")

	ds, err := Read(archive)
	require.NoError(t, err)
	require.Len(t, ds.Features.Features, 2)
	assert.Contains(t, ds.Projection, "GCS_WGS_1984")
	assert.Equal(t, "Rutherford", ds.Features.Features[1].Properties["NAME"])

	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.True(t, IsZip(data))

	ds, err = ReadZipBytes(data)
	require.NoError(t, err)
	assert.Len(t, ds.Features.Features, 2)
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	writeCounties(t, dir, true)

	read := func(ext string) []byte {
		data, err := os.ReadFile(filepath.Join(dir, "counties"+ext))
		require.NoError(t, err)
		return data
	}

	files := Files{SHP: read(".shp"), SHX: read(".shx"), DBF: read(".dbf"), PRJ: read(".prj")}
	assert.True(t, IsShp(files.SHP))

	ds, err := ReadFiles(files)
	require.NoError(t, err)
	assert.Len(t, ds.Features.Features, 2)
	assert.Equal(t, wgs84PRJ, ds.Projection)
}

func TestReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	valid := writeCounties(t, dir, true)
	data, err := os.ReadFile(valid)
	require.NoError(t, err)

	tests := []struct {
		name    string
		file    string
		content []byte
	}{
		{name: "garbage", file: "garbage.shp", content: []byte("this is not a shapefile at all, not even close to one")},
		{name: "truncated header", file: "short.shp", content: data[:50]},
		{name: "empty", file: "empty.shp", content: nil},
		{name: "not an archive", file: "broken.zip", content: []byte("PK but not really")},
		{name: "wrong extension", file: "counties.txt", content: data},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, tt.content, 0o600))

			_, err := Read(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(dir, "missing.shp"))
		assert.True(t, errors.Is(err, ErrFormat))
	})
}

func TestAttributeValue(t *testing.T) {
	num := shp.NumberField("N", 10)
	flt := shp.FloatField("F", 10, 3)
	str := shp.StringField("S", 10)
	logical := shp.Field{Fieldtype: 'L', Size: 1}

	assert.Equal(t, int64(42), attributeValue(num, " 42"))
	assert.Nil(t, attributeValue(num, "   "))
	assert.Nil(t, attributeValue(num, "*****"))
	assert.Equal(t, 1.5, attributeValue(flt, "1.500"))
	assert.Equal(t, "Nashville", attributeValue(str, "Nashville  "))
	assert.Equal(t, true, attributeValue(logical, "T"))
	assert.Equal(t, false, attributeValue(logical, "n"))
	assert.Nil(t, attributeValue(logical, "?"))
}

func TestPolygonsMultipleOuters(t *testing.T) {
	parts := []int32{0, 5}
	points := []shp.Point{
		{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
		{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 5}, {X: 5, Y: 5},
	}

	geom, err := polygons(parts, points)
	require.NoError(t, err)
	mp, ok := geom.(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)

	_, err = polygons([]int32{0, 20}, points)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestPolygonsAssignsHolesByContainment(t *testing.T) {
	// outer A, outer B, then a hole inside A listed after B
	parts := []int32{0, 5, 10}
	points := []shp.Point{
		{X: 0, Y: 0}, {X: 0, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 0}, {X: 0, Y: 0},
		{X: 10, Y: 10}, {X: 10, Y: 12}, {X: 12, Y: 12}, {X: 12, Y: 10}, {X: 10, Y: 10},
		{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 2}, {X: 1, Y: 1},
	}

	geom, err := polygons(parts, points)
	require.NoError(t, err)
	mp, ok := geom.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)

	assert.Len(t, mp[0], 2, "hole belongs to the first outer ring")
	assert.Len(t, mp[1], 1)
	assert.Equal(t, orb.CCW, mp[0][0].Orientation())
	assert.Equal(t, orb.CW, mp[0][1].Orientation())
	assert.InDelta(t, 15.0, planar.Area(mp[0]), 1e-9)
}

func TestPolygonsNestedOuters(t *testing.T) {
	// a hole inside an island inside a lake goes to the island
	parts := []int32{0, 5, 10}
	points := []shp.Point{
		{X: 3, Y: 3}, {X: 4, Y: 3}, {X: 4, Y: 4}, {X: 3, Y: 4}, {X: 3, Y: 3},
		{X: 2, Y: 2}, {X: 2, Y: 8}, {X: 8, Y: 8}, {X: 8, Y: 2}, {X: 2, Y: 2},
		{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
	}

	geom, err := polygons(parts, points)
	require.NoError(t, err)
	mp, ok := geom.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 2, "hole goes to the smaller containing outer")
	assert.Len(t, mp[1], 1)
}

func TestPolygonsOrphanHole(t *testing.T) {
	points := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}
	geom, err := polygons([]int32{0}, points)
	require.NoError(t, err)
	p, ok := geom.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, p, 1)
}
