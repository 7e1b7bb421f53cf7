// Package testutil provides shared test fixtures for perimeter geometry
// and a few assertion helpers.
//
// Fixtures return plain []orb.Point so that any package, including the
// perimeter package itself, can use them without an import cycle.
package testutil

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Square returns a counter-clockwise axis-aligned square centred on
// (cx, cy) with n vertices evenly spaced along its boundary, starting at
// the lower-left corner. n must be a multiple of 4.
func Square(cx, cy, side float64, n int) []orb.Point {
	perSide := n / 4
	half := side / 2
	corners := []orb.Point{
		{cx - half, cy - half},
		{cx + half, cy - half},
		{cx + half, cy + half},
		{cx - half, cy + half},
	}
	pts := make([]orb.Point, 0, n)
	for c := 0; c < 4; c++ {
		a, b := corners[c], corners[(c+1)%4]
		for k := 0; k < perSide; k++ {
			t := float64(k) / float64(perSide)
			pts = append(pts, orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])})
		}
	}
	return pts
}

// RegularPolygon returns n counter-clockwise vertices on a circle of radius r.
func RegularPolygon(cx, cy, r float64, n int) []orb.Point {
	pts := make([]orb.Point, n)
	for i := range pts {
		th := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = orb.Point{cx + r*math.Cos(th), cy + r*math.Sin(th)}
	}
	return pts
}

// Ellipse returns n counter-clockwise vertices of an axis-aligned ellipse.
func Ellipse(cx, cy, a, b float64, n int) []orb.Point {
	pts := make([]orb.Point, n)
	for i := range pts {
		th := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = orb.Point{cx + a*math.Cos(th), cy + b*math.Sin(th)}
	}
	return pts
}

// BowTie is a self-intersecting quadrilateral whose two lobes meet at
// (0, 0). The right lobe has width w, the left lobe width w/2.
func BowTie(w float64) []orb.Point {
	return []orb.Point{
		{-w / 2, -w / 2},
		{w, w},
		{w, -w},
		{-w / 2, w / 2},
	}
}

// AssertPointsClose fails unless got matches want vertex-for-vertex
// within tol.
func AssertPointsClose(t *testing.T, want, got []orb.Point, tol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("vertex count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(want[i][0]-got[i][0]) > tol || math.Abs(want[i][1]-got[i][1]) > tol {
			t.Errorf("vertex %d = %v, want %v (tol %g)", i, got[i], want[i], tol)
		}
	}
}
