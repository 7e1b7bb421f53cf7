package state

import (
	"math"
	"testing"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/testutil"
	"github.com/banshee-data/firefront/internal/units"
	"github.com/banshee-data/firefront/internal/validity"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecDims(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 40, Codec{Vertices: 20}.Dim())
	assert.Equal(t, 42, Codec{Vertices: 20, CarryWind: true}.Dim())
	assert.Equal(t, 40, Codec{Vertices: 20, CarryWind: true}.ObsDim())
	assert.ErrorIs(t, Codec{Vertices: 2}.Validate(), perimeter.ErrTooFewVertices)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	c := Codec{Vertices: 12}
	p := perimeter.Perimeter(testutil.RegularPolygon(100, -40, 25, 12))

	v, err := c.Encode(p, nil)
	require.NoError(t, err)
	require.Len(t, v, 24)
	assert.Equal(t, p[0][0], v[0])
	assert.Equal(t, p[0][1], v[1])

	got, err := c.Decode(v)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeResamplesAndOrients(t *testing.T) {
	t.Parallel()

	c := Codec{Vertices: 16}
	cw := perimeter.Perimeter(testutil.Square(0, 0, 40, 4)).Reverse()

	v, err := c.Encode(cw, nil)
	require.NoError(t, err)
	require.Len(t, v, 32)

	pts, err := c.Points(v)
	require.NoError(t, err)
	assert.Greater(t, pts.SignedArea(), 0.0)
	assert.InDelta(t, 1600.0, pts.Area(), 1e-9)
}

func TestEncodeCarriesWind(t *testing.T) {
	t.Parallel()

	c := Codec{Vertices: 4, CarryWind: true}
	p := perimeter.Perimeter(testutil.Square(0, 0, 2, 4))

	v, err := c.Encode(p, &units.Wind{Speed: 3, Direction: 90})
	require.NoError(t, err)
	require.Len(t, v, 10)
	assert.InDelta(t, 3.0, v[8], 1e-12)
	assert.InDelta(t, 0.0, v[9], 1e-12)

	w, ok := c.Wind(v)
	require.True(t, ok)
	assert.InDelta(t, 3.0, w.Speed, 1e-12)
	assert.InDelta(t, 90.0, w.Direction, 1e-9)

	c.SetWind(v, units.Wind{Speed: 2, Direction: 0})
	assert.InDelta(t, 0.0, v[8], 1e-12)
	assert.InDelta(t, 2.0, v[9], 1e-12)

	calm, err := c.Encode(p, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, []float64(calm[8:]))

	_, ok = Codec{Vertices: 4}.Wind(v[:8])
	assert.False(t, ok)
}

func TestEncodeAligned(t *testing.T) {
	t.Parallel()

	c := Codec{Vertices: 10}
	ref := perimeter.Perimeter(testutil.RegularPolygon(0, 0, 10, 10))
	cand := ref.Translate(1, 1).Rotate(4)

	v, a, err := c.EncodeAligned(cand, nil, ref)
	require.NoError(t, err)
	assert.Equal(t, 6, a.Offset)

	pts, err := c.Points(v)
	require.NoError(t, err)
	testutil.AssertPointsClose(t, ref.Translate(1, 1), pts, 1e-9)

	_, _, err = c.EncodeAligned(cand, nil, ref[:8])
	assert.ErrorIs(t, err, perimeter.ErrVertexCountMismatch)
}

func TestDecodeRepairsSelfIntersection(t *testing.T) {
	t.Parallel()

	c := Codec{Vertices: 4}
	v := Vector(perimeter.Perimeter(testutil.BowTie(4)).Flatten())

	p, err := c.Decode(v)
	require.NoError(t, err)
	assert.InDelta(t, 16.0, p.Area(), 1e-9)
	assert.Greater(t, p.SignedArea(), 0.0)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	c := Codec{Vertices: 4}
	_, err := c.Decode(Vector{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimension)

	_, err = c.Decode(Vector{0, 0, 1, 0, 2, 0, 3, 0})
	assert.ErrorIs(t, err, validity.ErrDegenerateGeometry)

	_, err = c.Decode(Vector{math.NaN(), 0, 1, 0, 1, 1, 0, 1})
	assert.Error(t, err)
}

func TestStackAndColumn(t *testing.T) {
	t.Parallel()

	vs := []Vector{{1, 2, 3}, {4, 5, 6}}
	m := Stack(vs)
	r, cols := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 5.0, m.At(1, 1))
	assert.Equal(t, vs[1], Column(m, 1))
	assert.Nil(t, Stack(nil))
}
