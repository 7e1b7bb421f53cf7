package perimeter

import (
	"fmt"
	"math"

	"github.com/paulmach/orb/planar"
)

// Alignment describes the circular shift chosen for a candidate perimeter.
type Alignment struct {
	// Offset k such that aligned[i] = candidate[(i+k) mod n].
	Offset int
	// SumSquared is the total squared vertex-pair distance at Offset.
	SumSquared float64
}

// AlignTo rotates cand so that its vertex i corresponds to ref's vertex i.
//
// Both rings are first put in counter-clockwise order, then every offset
// k in [0, n) is scored by the sum of squared distances between ref[i] and
// cand[(i+k) mod n]; the lowest score wins, ties going to the smaller k.
// The returned perimeter is the oriented candidate rotated by that offset.
func AlignTo(ref, cand Perimeter) (Perimeter, Alignment, error) {
	if len(ref) != len(cand) {
		return nil, Alignment{}, fmt.Errorf("align %d vertices to %d: %w", len(cand), len(ref), ErrVertexCountMismatch)
	}
	if len(ref) < 3 {
		return nil, Alignment{}, fmt.Errorf("align %d-vertex ring: %w", len(ref), ErrTooFewVertices)
	}
	r := ref.EnsureCCW()
	c := cand.EnsureCCW()

	best := Alignment{Offset: 0, SumSquared: math.Inf(1)}
	for k := 0; k < len(c); k++ {
		if d := offsetCost(r, c, k, best.SumSquared); d < best.SumSquared {
			best = Alignment{Offset: k, SumSquared: d}
		}
	}
	return c.Rotate(best.Offset), best, nil
}

// offsetCost sums squared distances for offset k, giving up once the
// running total reaches limit.
func offsetCost(r, c Perimeter, k int, limit float64) float64 {
	n := len(r)
	var sum float64
	for i := 0; i < n; i++ {
		a, b := r[i], c[(i+k)%n]
		dx, dy := a[0]-b[0], a[1]-b[1]
		sum += dx*dx + dy*dy
		if sum >= limit {
			return sum
		}
	}
	return sum
}

// AlignSequential aligns a time-ordered list of perimeters by chaining:
// perimeter i+1 is rotated so its first vertex is the vertex nearest the
// first vertex of the already rotated perimeter i. Only the start vertex is
// compared. Perimeters are first resampled to the largest vertex count in
// the list. The first perimeter keeps offset 0.
//
// This is the alignment used for per-vertex trajectories; state vectors
// use AlignTo.
func AlignSequential(list []Perimeter) ([]Perimeter, []int, error) {
	if len(list) == 0 {
		return nil, nil, nil
	}
	n := 0
	for _, p := range list {
		n = max(n, len(p))
	}
	out := make([]Perimeter, len(list))
	offsets := make([]int, len(list))
	for i, p := range list {
		p, err := Resample(p.EnsureCCW(), n)
		if err != nil {
			return nil, nil, fmt.Errorf("perimeter %d: %w", i, err)
		}
		if i == 0 {
			out[0] = p
			continue
		}
		start := out[i-1][0]
		k, bestDist := 0, math.Inf(1)
		for j, pt := range p {
			if d := planar.DistanceSquared(start, pt); d < bestDist {
				k, bestDist = j, d
			}
		}
		offsets[i] = k
		out[i] = p.Rotate(k)
	}
	return out, offsets, nil
}
