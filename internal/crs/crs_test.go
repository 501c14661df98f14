package crs

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Code
		wantErr bool
	}{
		{"EPSG:4326", WGS84, false},
		{"epsg:3857", WebMercator, false},
		{"urn:ogc:def:crs:EPSG::3857", WebMercator, false},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", WGS84, false},
		{"EPSG:900913", WebMercator, false},
		{"4269", WGS84, false},
		{"EPSG:32616", Code(32616), false},
		{"", Unknown, false},
		{"EPSG:abc", Unknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupported))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGeoJSON(t *testing.T) {
	code, err := FromGeoJSON([]byte(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Equal(t, WGS84, code)

	code, err = FromGeoJSON([]byte(`{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}},"features":[]}`))
	require.NoError(t, err)
	assert.Equal(t, WebMercator, code)

	code, err = FromGeoJSON([]byte(`{"type":"FeatureCollection","crs":{"type":"EPSG","properties":{"code":900913}},"features":[]}`))
	require.NoError(t, err)
	assert.Equal(t, WebMercator, code)

	_, err = FromGeoJSON([]byte(`{"type":"FeatureCollection","crs":{"type":"link","properties":{}},"features":[]}`))
	assert.True(t, errors.Is(err, ErrUnsupported))
}

const utm16N = `PROJCS["NAD_1983_UTM_Zone_16N",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-87.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

func TestFromPRJ(t *testing.T) {
	const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	const webMercator = `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]],PROJECTION["Mercator_Auxiliary_Sphere"]]`
	const truncated = `PROJCS["NAD_1983_UTM_Zone_16N",GEOGCS["GCS_North_American_1983"],PROJECTION["Transverse_Mercator"]]`
	const unknownProjection = `PROJCS["Odd",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Bonne"],UNIT["Meter",1.0]]`

	sys, err := FromPRJ(wgs84)
	require.NoError(t, err)
	assert.Equal(t, WGS84, sys.Code)
	assert.False(t, sys.Projected())

	sys, err = FromPRJ(webMercator)
	require.NoError(t, err)
	assert.Equal(t, WebMercator, sys.Code)

	sys, err = FromPRJ(utm16N)
	require.NoError(t, err)
	assert.True(t, sys.Projected())
	assert.Equal(t, "NAD_1983_UTM_Zone_16N", sys.String())

	for _, prj := range []string{truncated, unknownProjection} {
		_, err = FromPRJ(prj)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupported))
	}

	sys, err = FromPRJ("")
	require.NoError(t, err)
	assert.Equal(t, Unknown, sys.Code)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		code      Code
		projected bool
		wantErr   bool
	}{
		{WGS84, false, false},
		{Code(900913), false, false},
		{Code(32616), true, false},
		{Code(32733), true, false},
		{Code(26916), true, false},
		{Code(27700), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			sys, err := Lookup(tt.code)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupported))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.projected, sys.Projected())
		})
	}
}

func TestToWGS84FromUTM(t *testing.T) {
	tests := []struct {
		name string
		sys  func(t *testing.T) System
	}{
		{"prj", func(t *testing.T) System {
			sys, err := FromPRJ(utm16N)
			require.NoError(t, err)
			return sys
		}},
		{"epsg code", func(*testing.T) System { return System{Code: Code(32616)} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := geojson.NewFeatureCollection()
			fc.Append(geojson.NewFeature(orb.Point{500000, 4000000}))
			fc.Append(geojson.NewFeature(orb.LineString{{500000, 4000000}, {510000, 4010000}}))

			require.NoError(t, ToWGS84(fc, tt.sys(t)))

			p := fc.Features[0].Geometry.(orb.Point)
			assert.InDelta(t, -87.0, p.Lon(), 1e-4)
			assert.InDelta(t, 36.1447, p.Lat(), 1e-3)

			ls := fc.Features[1].Geometry.(orb.LineString)
			assert.Greater(t, ls[1].Lon(), -87.0)
			assert.Greater(t, ls[1].Lat(), ls[0].Lat())
		})
	}
}

func TestToWGS84FromMercator(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	// Nashville, TN in EPSG:3857
	f := geojson.NewFeature(orb.Point{-9624863.0, 4324628.0})
	f.Properties["name"] = "Nashville"
	fc.Append(f)

	require.NoError(t, ToWGS84(fc, System{Code: WebMercator}))

	p := fc.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, -86.46, p.Lon(), 0.01)
	assert.InDelta(t, 36.17, p.Lat(), 0.05)
	assert.Equal(t, "Nashville", fc.Features[0].Properties["name"])
}

func TestToWGS84Rejects(t *testing.T) {
	t.Run("unsupported code", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{500000, 4000000}))
		err := ToWGS84(fc, System{Code: Code(27700)})
		assert.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("undeclared projected coordinates", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{500000, 4000000}))
		err := ToWGS84(fc, System{})
		assert.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("declared wgs84 out of range", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{200, 10}))
		err := ToWGS84(fc, System{Code: WGS84})
		assert.True(t, errors.Is(err, ErrOutOfRange))
	})

	t.Run("null geometry tolerated", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(&geojson.Feature{Type: "Feature", Properties: geojson.Properties{}})
		assert.NoError(t, ToWGS84(fc, System{Code: WGS84}))
	})
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "EPSG:4326", WGS84.String())
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "EPSG:3857", Code(900913).Normalize().String())
}
