package mvt

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"github.com/stretchr/testify/assert"
)

func TestSimplifyGeometryZeroToleranceIsNoop(t *testing.T) {
	ls := orb.LineString{{0, 0}, {0, 1}, {0, 2}}
	out := simplifyGeometry(ls, 0)
	assert.Equal(t, ls, out)
}

func TestSimplifyRingExemptsFourOrFewerPoints(t *testing.T) {
	radial := simplify.Radial(planar.Distance, 10)
	rdp := simplify.DouglasPeucker(10)
	square := orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	out := simplifyRing(square, radial, rdp)
	assert.Equal(t, square, out)
}

func TestSimplifyRingFallsBackWhenCollapsedBelowThreePoints(t *testing.T) {
	radial := simplify.Radial(planar.Distance, 1000)
	rdp := simplify.DouglasPeucker(1000)
	ring := orb.Ring{{0, 0}, {0, 0.01}, {0.01, 0.01}, {0.01, 0}, {0, 0}}
	out := simplifyRing(ring, radial, rdp)
	assert.Equal(t, ring, out, "aggressive tolerance collapsing below 3 points must fall back to the original ring")
}

func TestSimplifyRingRecloses(t *testing.T) {
	radial := simplify.Radial(planar.Distance, 0.001)
	rdp := simplify.DouglasPeucker(0.001)
	ring := orb.Ring{{0, 0}, {5, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	out := simplifyRing(ring, radial, rdp)
	assert.Equal(t, out[0], out[len(out)-1], "a closed input ring must remain closed after simplification")
}

func TestSimplifyLineStringShortLinesUntouched(t *testing.T) {
	ls := orb.LineString{{0, 0}, {1, 1}}
	radial := simplify.Radial(planar.Distance, 1000)
	rdp := simplify.DouglasPeucker(1000)
	out := simplifyLineString(ls, radial, rdp)
	assert.Equal(t, ls, out)
}

func TestSimplifyGeometryDispatchesMultiPolygon(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}
	mp := orb.MultiPolygon{poly, poly}
	out := simplifyGeometry(mp, 0.01)
	result, ok := out.(orb.MultiPolygon)
	assert.True(t, ok)
	assert.Len(t, result, 2)
}
