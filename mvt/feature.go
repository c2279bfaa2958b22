package mvt

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// featureView adapts a geojson.Feature (as produced by orb's MVT codec) to
// style.Feature so the filter evaluator never imports orb directly.
type featureView struct {
	f *geojson.Feature
}

func (fv featureView) Property(name string) (interface{}, bool) {
	v, ok := fv.f.Properties[name]
	return v, ok
}

func (fv featureView) GeometryType() string {
	return geometryTypeName(fv.f.Geometry)
}

// geometryTypeName collapses orb's multi-geometry variants into the three
// buckets spec.md's filter evaluator recognises for `$type`.
func geometryTypeName(g orb.Geometry) string {
	if g == nil {
		return "Unknown"
	}
	switch g.GeoJSONType() {
	case "Point", "MultiPoint":
		return "Point"
	case "LineString", "MultiLineString":
		return "LineString"
	case "Polygon", "MultiPolygon":
		return "Polygon"
	default:
		return "Unknown"
	}
}
