// Package perimeter represents fire perimeters as closed rings of vertices
// and provides the arc-length resampling and circular alignment needed to
// compare perimeters as fixed-length vectors.
//
// A Perimeter never repeats its first vertex at the end; the closing edge
// from the last vertex back to the first is implicit.
package perimeter

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrTooFewVertices is returned when a perimeter cannot describe an area.
	ErrTooFewVertices = errors.New("perimeter needs at least 3 distinct vertices")
	// ErrVertexCountMismatch is returned when two perimeters that must be
	// compared vertex-for-vertex have different lengths.
	ErrVertexCountMismatch = errors.New("perimeters have different vertex counts")
)

// Perimeter is an ordered ring of vertices without a duplicated closing vertex.
type Perimeter []orb.Point

// FromRing converts an orb.Ring, dropping the closing vertex if present.
func FromRing(r orb.Ring) Perimeter {
	n := len(r)
	if n > 1 && r[0] == r[n-1] {
		n--
	}
	p := make(Perimeter, n)
	copy(p, r[:n])
	return p
}

// Ring returns the perimeter as a closed orb.Ring.
func (p Perimeter) Ring() orb.Ring {
	r := make(orb.Ring, len(p), len(p)+1)
	copy(r, p)
	if len(p) > 0 {
		r = append(r, p[0])
	}
	return r
}

// Polygon returns the perimeter as a single-ring orb.Polygon.
func (p Perimeter) Polygon() orb.Polygon {
	return orb.Polygon{p.Ring()}
}

// Clone returns a copy of p.
func (p Perimeter) Clone() Perimeter {
	if p == nil {
		return nil
	}
	out := make(Perimeter, len(p))
	copy(out, p)
	return out
}

// SignedArea is the shoelace area; positive for counter-clockwise rings.
func (p Perimeter) SignedArea() float64 {
	n := len(p)
	if n < 3 {
		return 0
	}
	// shift towards the origin to limit cancellation on projected coordinates
	ox, oy := p[0][0], p[0][1]
	var sum float64
	for i := 0; i < n; i++ {
		a, b := p[i], p[(i+1)%n]
		sum += (a[0]-ox)*(b[1]-oy) - (b[0]-ox)*(a[1]-oy)
	}
	return sum / 2
}

// Area returns the unsigned enclosed area.
func (p Perimeter) Area() float64 {
	return math.Abs(p.SignedArea())
}

// Length returns the closed boundary length.
func (p Perimeter) Length() float64 {
	var total float64
	for i := range p {
		total += planar.Distance(p[i], p[(i+1)%len(p)])
	}
	return total
}

// Centroid returns the area centroid, falling back to the vertex mean for
// degenerate rings.
func (p Perimeter) Centroid() orb.Point {
	if len(p) == 0 {
		return orb.Point{}
	}
	if c, area := planar.CentroidArea(p.Polygon()); area != 0 {
		return c
	}
	var sx, sy float64
	for _, pt := range p {
		sx += pt[0]
		sy += pt[1]
	}
	return orb.Point{sx / float64(len(p)), sy / float64(len(p))}
}

// Orientation reports orb.CCW or orb.CW, or 0 for a degenerate ring.
func (p Perimeter) Orientation() orb.Orientation {
	switch a := p.SignedArea(); {
	case a > 0:
		return orb.CCW
	case a < 0:
		return orb.CW
	}
	return 0
}

// Reverse returns the vertices in the opposite order.
func (p Perimeter) Reverse() Perimeter {
	out := make(Perimeter, len(p))
	for i, pt := range p {
		out[len(p)-1-i] = pt
	}
	return out
}

// EnsureCCW returns p reversed when its signed area is negative, otherwise
// a copy of p.
func (p Perimeter) EnsureCCW() Perimeter {
	if p.SignedArea() < 0 {
		return p.Reverse()
	}
	return p.Clone()
}

// Rotate returns p with vertex i taken from p[(i+k) mod n].
func (p Perimeter) Rotate(k int) Perimeter {
	n := len(p)
	out := make(Perimeter, n)
	if n == 0 {
		return out
	}
	k = ((k % n) + n) % n
	for i := range out {
		out[i] = p[(i+k)%n]
	}
	return out
}

// Translate returns p shifted by (dx, dy).
func (p Perimeter) Translate(dx, dy float64) Perimeter {
	out := make(Perimeter, len(p))
	for i, pt := range p {
		out[i] = orb.Point{pt[0] + dx, pt[1] + dy}
	}
	return out
}

// Flatten interleaves the coordinates as x0, y0, x1, y1, ...
func (p Perimeter) Flatten() []float64 {
	out := make([]float64, 0, 2*len(p))
	for _, pt := range p {
		out = append(out, pt[0], pt[1])
	}
	return out
}

// FromFlat rebuilds a perimeter from interleaved coordinates. A trailing
// odd value is ignored.
func FromFlat(xy []float64) Perimeter {
	p := make(Perimeter, len(xy)/2)
	for i := range p {
		p[i] = orb.Point{xy[2*i], xy[2*i+1]}
	}
	return p
}

// distinct drops consecutive duplicate vertices, including a last vertex
// equal to the first, using tol as the coincidence distance.
func distinct(p Perimeter, tol float64) Perimeter {
	out := make(Perimeter, 0, len(p))
	for _, pt := range p {
		if len(out) > 0 && planar.Distance(out[len(out)-1], pt) <= tol {
			continue
		}
		out = append(out, pt)
	}
	for len(out) > 1 && planar.Distance(out[0], out[len(out)-1]) <= tol {
		out = out[:len(out)-1]
	}
	return out
}
