package perimeter

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/floats"
)

// coincidentFraction scales the distance below which two output vertices
// are treated as the same vertex.
const coincidentFraction = 1e-9

// sampler places n points along the closed ring pts.
type sampler func(pts Perimeter, n int) Perimeter

// Resample returns exactly n vertices spaced at equal arc-length intervals
// around the closed ring, starting at the ring's first vertex. A ring that
// already has n distinct vertices is returned unchanged.
func Resample(p Perimeter, n int) (Perimeter, error) {
	return resample(p, n, sampleArcLength)
}

func resample(p Perimeter, n int, sample sampler) (Perimeter, error) {
	if n < 3 {
		return nil, fmt.Errorf("resample to %d vertices: %w", n, ErrTooFewVertices)
	}
	pts := distinct(p, 0)
	if len(pts) < 3 {
		return nil, fmt.Errorf("resample %d-vertex ring: %w", len(p), ErrTooFewVertices)
	}
	if len(pts) == n {
		return pts, nil
	}

	length := pts.Length()
	if length == 0 {
		return nil, fmt.Errorf("resample zero-length ring: %w", ErrTooFewVertices)
	}
	tol := coincidentFraction * length

	out := distinct(sample(pts, n), tol)
	switch len(out) {
	case n:
		return out, nil
	case n - 1, n + 1:
		// Rounding merged or split a vertex at the seam; one retry at the
		// adjusted target lands on n.
		target := n + (n - len(out))
		retry := distinct(sample(pts, target), tol)
		if len(retry) != n {
			return nil, fmt.Errorf("resample to %d vertices produced %d after retry at %d", n, len(retry), target)
		}
		return retry, nil
	default:
		return nil, fmt.Errorf("resample to %d vertices produced %d distinct vertices", n, len(out))
	}
}

// sampleArcLength interpolates n points at arc-length positions k*L/n,
// k = 0..n-1, using piecewise-linear interpolation of x and y against the
// cumulative edge length.
func sampleArcLength(pts Perimeter, n int) Perimeter {
	ring := pts.Ring()
	steps := make([]float64, len(ring))
	for i := 1; i < len(ring); i++ {
		steps[i] = planar.Distance(ring[i-1], ring[i])
	}
	cum := floats.CumSum(make([]float64, len(steps)), steps)
	total := cum[len(cum)-1]

	out := make(Perimeter, n)
	for k := range out {
		out[k] = interpolateAt(ring, cum, total*float64(k)/float64(n))
	}
	return out
}

// interpolateAt finds the edge whose cumulative range brackets s. Zero-length
// edges have an empty range and are never selected, so cum only needs to be
// non-decreasing.
func interpolateAt(ring orb.Ring, cum []float64, s float64) orb.Point {
	j := sort.Search(len(cum), func(i int) bool { return cum[i] > s }) - 1
	if j < 0 {
		j = 0
	}
	if j >= len(cum)-1 {
		return ring[len(ring)-1]
	}
	span := cum[j+1] - cum[j]
	t := (s - cum[j]) / span
	a, b := ring[j], ring[j+1]
	return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}
