package inspect

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountVertices(t *testing.T) {
	assert.Equal(t, uint64(1), countVertices(orb.Point{0, 0}))
	assert.Equal(t, uint64(3), countVertices(orb.LineString{{0, 0}, {1, 1}, {2, 2}}))
	assert.Equal(t, uint64(0), countVertices(nil))

	poly := orb.Polygon{orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}
	assert.Equal(t, uint64(5), countVertices(poly))

	mp := orb.MultiPolygon{poly, poly}
	assert.Equal(t, uint64(10), countVertices(mp))
}

func TestLayerAccumAddLayerAndFinish(t *testing.T) {
	f1 := geojson.NewFeature(orb.Point{0, 0})
	f1.Properties["class"] = "primary"
	f2 := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
	f2.Properties["class"] = "secondary"
	f2.Properties["oneway"] = true

	layer := &mvt.Layer{Name: "roads", Features: []*geojson.Feature{f1, f2}}

	acc := newLayerAccum()
	acc.addLayer(layer, 2.0)
	summary := acc.finish()

	assert.Equal(t, 4.0, summary.FeatureCount, "2 features weighted by 2.0")
	assert.Equal(t, uint64(3), summary.VertexCount)
	assert.Equal(t, []string{"class", "oneway"}, summary.PropertyKeys)
	assert.Equal(t, 3, summary.PropertyValues, "primary, secondary, true")
}

func TestSingleTileSummary(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties["name"] = "x"
	layers := mvt.Layers{{Name: "poi", Extent: 4096, Features: []*geojson.Feature{f}}}
	data, err := mvt.Marshal(layers)
	require.NoError(t, err)

	summary, err := singleTileSummary(3, 1, 2, data)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), summary.Z)
	assert.Equal(t, uint32(1), summary.X)
	assert.Equal(t, uint32(2), summary.Y)
	require.Len(t, summary.Layers, 1)
	assert.Equal(t, "poi", summary.Layers[0].Name)
	assert.Equal(t, 1, summary.Layers[0].FeatureCount)
	assert.Equal(t, []string{"name"}, summary.Layers[0].PropertyKeys)
}
