package validity

import (
	"testing"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/testutil"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairSimpleRingUnchanged(t *testing.T) {
	t.Parallel()

	sq := perimeter.Perimeter(testutil.Square(0, 0, 10, 8))
	got, err := Repair(sq.Polygon())
	require.NoError(t, err)
	assert.Equal(t, sq, got)
	assert.True(t, IsSimple(got))
}

func TestRepairOrientsCounterClockwise(t *testing.T) {
	t.Parallel()

	cw := perimeter.Perimeter(testutil.RegularPolygon(0, 0, 5, 7)).Reverse()
	got, err := RepairPerimeter(cw)
	require.NoError(t, err)
	assert.Equal(t, orb.CCW, got.Orientation())
	assert.InDelta(t, cw.Area(), got.Area(), 1e-9)
}

func TestRepairBowTieKeepsLargerLobe(t *testing.T) {
	t.Parallel()

	bow := perimeter.Perimeter(testutil.BowTie(4))
	require.False(t, IsSimple(bow))

	got, err := RepairPerimeter(bow)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 16.0, got.Area(), 1e-9)
	assert.Greater(t, got.SignedArea(), 0.0)
	assert.True(t, IsSimple(got))
	testutil.AssertPointsClose(t, []orb.Point{{4, -4}, {4, 4}, {0, 0}}, got, 1e-12)
}

func TestRepairFigureEightWithLoopInside(t *testing.T) {
	t.Parallel()

	// A square whose last edges double back through it, creating a small
	// self-intersection near one corner.
	p := perimeter.Perimeter{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 1}, {1, 1}, {1, -1}, {0.5, -1}}
	got, err := RepairPerimeter(p)
	require.NoError(t, err)
	assert.True(t, IsSimple(got))
	assert.Greater(t, got.Area(), 90.0)
}

func TestRepairMultiPolygonPicksLargest(t *testing.T) {
	t.Parallel()

	small := perimeter.Perimeter(testutil.Square(0, 0, 2, 4))
	big := perimeter.Perimeter(testutil.Square(50, 50, 20, 8))
	mp := orb.MultiPolygon{small.Polygon(), big.Polygon()}

	got, err := Repair(mp)
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestRepairCollection(t *testing.T) {
	t.Parallel()

	big := perimeter.Perimeter(testutil.Square(0, 0, 20, 4))
	coll := orb.Collection{
		orb.Point{1, 1},
		orb.LineString{{0, 0}, {100, 100}},
		orb.MultiPolygon{perimeter.Perimeter(testutil.BowTie(2)).Polygon()},
		big.Ring(),
	}

	got, err := Repair(coll)
	require.NoError(t, err)
	assert.InDelta(t, 400.0, got.Area(), 1e-9)
}

func TestRepairDropsHoles(t *testing.T) {
	t.Parallel()

	outer := perimeter.Perimeter(testutil.Square(0, 0, 10, 4))
	hole := perimeter.Perimeter(testutil.Square(0, 0, 2, 4)).Reverse()
	got, err := Repair(orb.Polygon{outer.Ring(), hole.Ring()})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, got.Area(), 1e-9)
}

func TestRepairDegenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"nil", nil},
		{"point", orb.Point{1, 2}},
		{"open line", orb.LineString{{0, 0}, {1, 1}, {2, 0}}},
		{"collinear ring", orb.Ring{{0, 0}, {1, 0}, {2, 0}, {0, 0}}},
		{"repeated vertex", orb.Ring{{1, 1}, {1, 1}, {1, 1}}},
		{"empty polygon", orb.Polygon{}},
		{"empty collection", orb.Collection{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Repair(tt.geom)
			assert.ErrorIs(t, err, ErrDegenerateGeometry)
		})
	}
}

func TestRepairClosedLineString(t *testing.T) {
	t.Parallel()

	ls := orb.LineString{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}
	got, err := Repair(ls)
	require.NoError(t, err)
	assert.InDelta(t, 16.0, got.Area(), 1e-12)
}

func TestSegmentIntersection(t *testing.T) {
	t.Parallel()

	x, ok := segmentIntersection(orb.Point{0, 0}, orb.Point{2, 2}, orb.Point{0, 2}, orb.Point{2, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, x[0], 1e-12)
	assert.InDelta(t, 1.0, x[1], 1e-12)

	_, ok = segmentIntersection(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{0, 1}, orb.Point{1, 1})
	assert.False(t, ok, "parallel")

	_, ok = segmentIntersection(orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{3, 0}, orb.Point{2, 1})
	assert.False(t, ok, "lines cross outside both segments")
}
