package mvt

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// simplifyGeometry applies a radial-distance pre-filter followed by
// Ramer-Douglas-Peucker, both driven by toleranceSquared (spec.md §4.6).
// orb's simplifiers take a linear distance threshold, so the square root is
// taken once here rather than asking every call site to do it.
func simplifyGeometry(g orb.Geometry, toleranceSquared float64) orb.Geometry {
	if toleranceSquared <= 0 || g == nil {
		return g
	}
	threshold := math.Sqrt(toleranceSquared)
	radial := simplify.Radial(planar.Distance, threshold)
	rdp := simplify.DouglasPeucker(threshold)

	switch t := g.(type) {
	case orb.LineString:
		return simplifyLineString(t, radial, rdp)
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(t))
		for i, ls := range t {
			out[i] = simplifyLineString(ls, radial, rdp)
		}
		return out
	case orb.Polygon:
		return simplifyPolygon(t, radial, rdp)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(t))
		for i, p := range t {
			out[i] = simplifyPolygon(p, radial, rdp)
		}
		return out
	default:
		return g
	}
}

func simplifyLineString(ls orb.LineString, radial, rdp simplify.Simplifier) orb.LineString {
	if len(ls) <= 2 {
		return ls
	}
	pre, ok := radial.Simplify(ls).(orb.LineString)
	if !ok {
		pre = ls
	}
	out, ok := rdp.Simplify(pre).(orb.LineString)
	if !ok || len(out) < 2 {
		return ls
	}
	return out
}

func simplifyPolygon(p orb.Polygon, radial, rdp simplify.Simplifier) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		out[i] = simplifyRing(ring, radial, rdp)
	}
	return out
}

// simplifyRing applies the radial+RDP pipeline to a polygon ring, honoring
// spec.md §4.6's exemptions: rings of <=4 points are left untouched, a
// simplification that collapses below 3 points falls back to the original
// ring, and a closed ring is re-closed by appending its first point.
func simplifyRing(ring orb.Ring, radial, rdp simplify.Simplifier) orb.Ring {
	if len(ring) <= 4 {
		return ring
	}

	closed := len(ring) > 0 && ring[0] == ring[len(ring)-1]

	ls := orb.LineString(ring)
	pre, ok := radial.Simplify(ls).(orb.LineString)
	if !ok {
		pre = ls
	}
	out, ok := rdp.Simplify(pre).(orb.LineString)
	if !ok || len(out) < 3 {
		return ring
	}

	if closed && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return orb.Ring(out)
}
