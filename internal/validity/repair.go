// Package validity turns whatever a forward model or decoder produces into
// a single simple perimeter: self-intersecting rings are split at their
// crossings and the part with the largest area is kept.
package validity

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/paulmach/orb"
)

// ErrDegenerateGeometry is returned when no part of the input encloses area.
var ErrDegenerateGeometry = errors.New("geometry has no polygon with positive area")

// parallelTolerance is the |sin| below which two edges are treated as parallel.
const parallelTolerance = 1e-12

// Repair returns the exterior ring of the largest simple polygon in g,
// oriented counter-clockwise. Holes are dropped.
func Repair(g orb.Geometry) (perimeter.Perimeter, error) {
	best := largest(g)
	if len(best) < 3 || best.Area() == 0 {
		return nil, fmt.Errorf("repair %s: %w", geometryName(g), ErrDegenerateGeometry)
	}
	return best.EnsureCCW(), nil
}

// RepairPerimeter is Repair for a bare vertex ring.
func RepairPerimeter(p perimeter.Perimeter) (perimeter.Perimeter, error) {
	return Repair(orb.Ring(p))
}

// IsSimple reports whether no two non-adjacent edges of p touch.
func IsSimple(p perimeter.Perimeter) bool {
	_, _, _, crosses := firstCrossing(dedupe(p))
	return !crosses
}

func largest(g orb.Geometry) perimeter.Perimeter {
	var parts []perimeter.Perimeter
	switch g := g.(type) {
	case orb.Ring:
		parts = simpleLoops(perimeter.FromRing(g))
	case orb.Polygon:
		if len(g) > 0 {
			parts = simpleLoops(perimeter.FromRing(g[0]))
		}
	case orb.Bound:
		parts = simpleLoops(perimeter.FromRing(g.ToRing()))
	case orb.LineString:
		// Only a closed line string bounds anything.
		if len(g) > 3 && g[0] == g[len(g)-1] {
			parts = simpleLoops(perimeter.FromRing(orb.Ring(g)))
		}
	case orb.MultiLineString:
		for _, ls := range g {
			parts = append(parts, largest(ls))
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			parts = append(parts, largest(poly))
		}
	case orb.Collection:
		for _, sub := range g {
			parts = append(parts, largest(sub))
		}
	}

	var best perimeter.Perimeter
	bestArea := 0.0
	for _, p := range parts {
		if a := p.Area(); a > bestArea {
			best, bestArea = p, a
		}
	}
	return best
}

// simpleLoops splits p at its first crossing into two loops and recurses
// until every loop is simple. Each split strictly shortens both loops.
func simpleLoops(p perimeter.Perimeter) []perimeter.Perimeter {
	p = dedupe(p)
	if len(p) < 3 {
		return nil
	}
	i, j, x, crosses := firstCrossing(p)
	if !crosses {
		return []perimeter.Perimeter{p}
	}

	n := len(p)
	loopA := make(perimeter.Perimeter, 0, j-i+1)
	loopA = append(loopA, x)
	loopA = append(loopA, p[i+1:j+1]...)

	loopB := make(perimeter.Perimeter, 0, n-(j-i)+1)
	loopB = append(loopB, x)
	loopB = append(loopB, p[j+1:]...)
	loopB = append(loopB, p[:i+1]...)

	return append(simpleLoops(loopA), simpleLoops(loopB)...)
}

// firstCrossing finds the first pair of non-adjacent edges (i, j), i < j,
// that intersect, and the intersection point. Edge k runs from p[k] to
// p[(k+1) mod n].
func firstCrossing(p perimeter.Perimeter) (int, int, orb.Point, bool) {
	n := len(p)
	if n < 4 {
		return 0, 0, orb.Point{}, false
	}
	for i := 0; i < n-2; i++ {
		a, b := p[i], p[i+1]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if x, ok := segmentIntersection(a, b, p[j], p[(j+1)%n]); ok {
				return i, j, x, true
			}
		}
	}
	return 0, 0, orb.Point{}, false
}

// segmentIntersection returns the point where segments ab and cd meet.
// Parallel and collinear segments report no intersection.
func segmentIntersection(a, b, c, d orb.Point) (orb.Point, bool) {
	rx, ry := b[0]-a[0], b[1]-a[1]
	sx, sy := d[0]-c[0], d[1]-c[1]
	denom := rx*sy - ry*sx
	if math.Abs(denom) <= parallelTolerance*math.Hypot(rx, ry)*math.Hypot(sx, sy) {
		return orb.Point{}, false
	}
	qx, qy := c[0]-a[0], c[1]-a[1]
	t := (qx*sy - qy*sx) / denom
	u := (qx*ry - qy*rx) / denom
	if !(t >= 0 && t <= 1 && u >= 0 && u <= 1) {
		return orb.Point{}, false
	}
	return orb.Point{a[0] + t*rx, a[1] + t*ry}, true
}

// dedupe drops consecutive repeated vertices and a closing repeat.
func dedupe(p perimeter.Perimeter) perimeter.Perimeter {
	out := make(perimeter.Perimeter, 0, len(p))
	for _, pt := range p {
		if len(out) > 0 && out[len(out)-1] == pt {
			continue
		}
		out = append(out, pt)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

func geometryName(g orb.Geometry) string {
	if g == nil {
		return "nil geometry"
	}
	return g.GeoJSONType()
}
