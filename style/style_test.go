package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleAtAsymmetricMinMaxZoom(t *testing.T) {
	min := uint8(5)
	max := uint8(10)
	layer := StyleLayer{MinZoom: &min, MaxZoom: &max, Visibility: "visible"}

	assert.False(t, layer.VisibleAt(4))
	assert.True(t, layer.VisibleAt(5), "minzoom is inclusive")
	assert.True(t, layer.VisibleAt(9))
	assert.False(t, layer.VisibleAt(10), "maxzoom is exclusive")
}

func TestVisibleAtNoneVisibility(t *testing.T) {
	layer := StyleLayer{Visibility: "none"}
	assert.False(t, layer.VisibleAt(0))
	assert.False(t, layer.VisibleAt(20))
}

func TestVisibleAtZeroPaintValueHidesLayer(t *testing.T) {
	zero := 0.0
	layer := StyleLayer{
		Visibility: "visible",
		Paint:      map[string]PaintValue{"fill-opacity": {Constant: &zero}},
	}
	assert.False(t, layer.VisibleAt(5))
}

func TestPaintValueValueAtConstant(t *testing.T) {
	v := 0.5
	pv := PaintValue{Constant: &v}
	got, ok := pv.ValueAt(10)
	require.True(t, ok)
	assert.Equal(t, 0.5, got)
}

func TestPaintValueValueAtStops(t *testing.T) {
	pv := PaintValue{Stops: []Stop{{Zoom: 5, Value: 1}, {Zoom: 10, Value: 2}}}
	got, ok := pv.ValueAt(10)
	require.True(t, ok)
	assert.Equal(t, 2.0, got)

	_, ok = pv.ValueAt(7)
	assert.False(t, ok, "no exact stop at zoom 7")
}

func TestParseDropsLayersMissingSourceOrSourceLayer(t *testing.T) {
	doc := []byte(`{
		"layers": [
			{"source": "a", "source-layer": "roads"},
			{"source": "a"},
			{"source-layer": "water"}
		]
	}`)
	s, err := Parse(doc)
	require.NoError(t, err)
	assert.Len(t, s.layers, 1)
	assert.True(t, s.HasSourceLayer("roads"))
	assert.False(t, s.HasSourceLayer("water"))
}

func TestParseLayerFields(t *testing.T) {
	doc := []byte(`{
		"layers": [
			{
				"source": "a",
				"source-layer": "roads",
				"minzoom": 3,
				"maxzoom": 12,
				"layout": {"visibility": "none"},
				"paint": {"line-width": 2, "fill-opacity": {"stops": [[0, 1], [5, 0]]}},
				"filter": ["==", "class", "primary"]
			}
		]
	}`)
	s, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, s.layers, 1)

	layer := s.layers[0]
	assert.Equal(t, "roads", layer.SourceLayer)
	assert.Equal(t, "none", layer.Visibility)
	require.NotNil(t, layer.MinZoom)
	assert.Equal(t, uint8(3), *layer.MinZoom)
	require.NotNil(t, layer.MaxZoom)
	assert.Equal(t, uint8(12), *layer.MaxZoom)
	require.Contains(t, layer.Paint, "line-width")
	v, ok := layer.Paint["line-width"].ValueAt(0)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	require.NotNil(t, layer.Filter)
	assert.Equal(t, FilterEq, layer.Filter.Kind)
}

func TestParseDefaultsVisibilityToVisible(t *testing.T) {
	doc := []byte(`{"layers": [{"source": "a", "source-layer": "roads"}]}`)
	s, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "visible", s.layers[0].Visibility)
}

func TestSourceLayerNamesSorted(t *testing.T) {
	doc := []byte(`{
		"layers": [
			{"source": "a", "source-layer": "water"},
			{"source": "a", "source-layer": "roads"}
		]
	}`)
	s, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"roads", "water"}, s.SourceLayerNames())
}

func TestLayersForReturnsDocumentOrder(t *testing.T) {
	doc := []byte(`{
		"layers": [
			{"source": "a", "source-layer": "roads", "minzoom": 1},
			{"source": "a", "source-layer": "roads", "minzoom": 2}
		]
	}`)
	s, err := Parse(doc)
	require.NoError(t, err)
	layers := s.LayersFor("roads")
	require.Len(t, layers, 2)
	assert.Equal(t, uint8(1), *layers[0].MinZoom)
	assert.Equal(t, uint8(2), *layers[1].MinZoom)
}
