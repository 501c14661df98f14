package pipeline

import (
	"context"
	"image/color"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/springmap/internal/raster"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

func TestFromMap(t *testing.T) {
	m, err := springmap.Default()
	require.NoError(t, err)
	_, err = m.AddBasemap("openstreetmap")
	require.NoError(t, err)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{9.73, 52.375}))
	fc.Append(geojson.NewFeature(orb.Point{9.74, 52.38}))
	vl, err := m.AddFeatures(fc, "Stops", springmap.StyleMap{"color": "#ff0000", "fillOpacity": 1.0, "radius": 8.0})
	require.NoError(t, err)

	layers := FromMap(m)
	require.Len(t, layers, 1, "tile layers are skipped")
	l := layers[0]
	assert.Equal(t, vl.Name(), l.Name)
	assert.Equal(t, 1.0, l.Opacity)
	require.Len(t, l.Styles, 2)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, l.Styles[0].Stroke)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, l.Styles[1].Fill)
	assert.Equal(t, 8.0, l.Styles[1].Radius)
	assert.Equal(t, raster.DefaultStyle.Weight, l.Styles[0].Weight)

	g, err := NewGenerator(layers, nil, GeneratorOptions{}, nil)
	require.NoError(t, err)
	mt := maptile.At(orb.Point{9.73, 52.375}, 14)
	c := tile.NewCoords(uint32(mt.Z), mt.X, mt.Y)
	img, err := g.Render(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, img)
}
