// Package metrics scores how far apart two perimeters are.
package metrics

import (
	"fmt"
	"math"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/state"
	"github.com/ctessum/geom"
	"github.com/paulmach/orb/planar"
)

// DefaultRMSVertices is the resampling density used when a caller passes a
// non-positive vertex count to RMS.
const DefaultRMSVertices = 100

// RMS resamples both perimeters to n vertices, aligns b to a and returns
// the root mean square vertex distance.
func RMS(a, b perimeter.Perimeter, n int) (float64, error) {
	if n <= 0 {
		n = DefaultRMSVertices
	}
	ra, err := perimeter.Resample(a.EnsureCCW(), n)
	if err != nil {
		return 0, fmt.Errorf("rms: %w", err)
	}
	rb, err := perimeter.Resample(b.EnsureCCW(), n)
	if err != nil {
		return 0, fmt.Errorf("rms: %w", err)
	}
	_, al, err := perimeter.AlignTo(ra, rb)
	if err != nil {
		return 0, fmt.Errorf("rms: %w", err)
	}
	return math.Sqrt(al.SumSquared / float64(n)), nil
}

// StateRMS compares two encoded states vertex for vertex, ignoring any
// wind entries.
func StateRMS(c state.Codec, a, b state.Vector) (float64, error) {
	pa, err := c.Points(a)
	if err != nil {
		return 0, err
	}
	pb, err := c.Points(b)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range pa {
		sum += planar.DistanceSquared(pa[i], pb[i])
	}
	return math.Sqrt(sum / float64(len(pa))), nil
}

// SymmetricAreaDifference is area(a) + area(b) - 2*area(a intersect b):
// the area covered by exactly one of the two perimeters.
func SymmetricAreaDifference(a, b perimeter.Perimeter) float64 {
	d := a.Area() + b.Area() - 2*IntersectionArea(a, b)
	if d < 0 {
		return 0
	}
	return d
}

// IntersectionArea returns the area a and b share.
func IntersectionArea(a, b perimeter.Perimeter) float64 {
	return toGeom(a).Intersection(toGeom(b)).Area()
}

// CentroidDistance is the distance between the area centroids.
func CentroidDistance(a, b perimeter.Perimeter) float64 {
	return planar.Distance(a.Centroid(), b.Centroid())
}

func toGeom(p perimeter.Perimeter) geom.Polygon {
	path := make(geom.Path, len(p))
	for i, pt := range p {
		path[i] = geom.Point{X: pt[0], Y: pt[1]}
	}
	return geom.Polygon{path}
}
