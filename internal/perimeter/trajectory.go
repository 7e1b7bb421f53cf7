package perimeter

import (
	"fmt"
	"math"

	"github.com/banshee-data/firefront/internal/units"
	"github.com/paulmach/orb"
)

// Trajectories transposes sequentially aligned perimeters into per-vertex
// tracks: result[v][t] is vertex v of perimeter t.
func Trajectories(aligned []Perimeter) ([][]orb.Point, error) {
	if len(aligned) == 0 {
		return nil, nil
	}
	n := len(aligned[len(aligned)-1])
	tracks := make([][]orb.Point, n)
	for v := range tracks {
		tracks[v] = make([]orb.Point, len(aligned))
	}
	for t, p := range aligned {
		if len(p) != n {
			return nil, fmt.Errorf("perimeter %d has %d vertices, want %d: %w", t, len(p), n, ErrVertexCountMismatch)
		}
		for v, pt := range p {
			tracks[v][t] = pt
		}
	}
	return tracks, nil
}

// OutwardVectors returns, for each vertex, the unit vector pointing from
// the vertex mean to that vertex. A vertex sitting on the mean gets a zero
// vector.
func OutwardVectors(p Perimeter) []orb.Point {
	var cx, cy float64
	for _, pt := range p {
		cx += pt[0]
		cy += pt[1]
	}
	cx /= float64(len(p))
	cy /= float64(len(p))

	out := make([]orb.Point, len(p))
	for i, pt := range p {
		dx, dy := pt[0]-cx, pt[1]-cy
		if l := math.Hypot(dx, dy); l > 0 {
			out[i] = orb.Point{dx / l, dy / l}
		}
	}
	return out
}

// WindUncertainties weights a per-vertex position uncertainty by how much
// each vertex faces away from the wind: ((1 - v.w) / 4) * scale, where v is
// the vertex's outward unit vector and w the unit vector of the wind
// bearing. Downwind vertices get the smallest value, upwind the largest
// (scale/2).
func WindUncertainties(p Perimeter, windDirection, scale float64) []float64 {
	wx, wy := units.BearingVector(windDirection)
	vecs := OutwardVectors(p)
	out := make([]float64, len(p))
	for i, v := range vecs {
		out[i] = (1 - (v[0]*wx + v[1]*wy)) / 4 * scale
	}
	return out
}
