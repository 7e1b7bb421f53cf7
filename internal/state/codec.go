// Package state maps perimeters to the fixed-length vectors the ensemble
// filter operates on and back again.
//
// A state vector holds the interleaved vertex coordinates x0, y0, x1, y1, ...
// of a perimeter resampled to a fixed vertex count. When the codec carries
// wind, the planar wind components (wind_x, wind_y) follow the positions.
package state

import (
	"errors"
	"fmt"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/units"
	"github.com/banshee-data/firefront/internal/validity"
	"gonum.org/v1/gonum/mat"
)

// ErrDimension is returned when a vector does not match the codec layout.
var ErrDimension = errors.New("state vector dimension mismatch")

// Vector is an encoded state.
type Vector []float64

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Codec fixes the layout of state vectors.
type Codec struct {
	Vertices  int
	CarryWind bool
}

// Validate checks the codec can describe a polygon.
func (c Codec) Validate() error {
	if c.Vertices < 3 {
		return fmt.Errorf("codec with %d vertices: %w", c.Vertices, perimeter.ErrTooFewVertices)
	}
	return nil
}

// Dim is the state vector length.
func (c Codec) Dim() int {
	if c.CarryWind {
		return 2*c.Vertices + 2
	}
	return 2 * c.Vertices
}

// ObsDim is the length of an observation vector; observations carry
// positions only.
func (c Codec) ObsDim() int {
	return 2 * c.Vertices
}

// Encode resamples p to the codec's vertex count and flattens it. The
// perimeter is put in counter-clockwise order first. With CarryWind the
// components of wind are appended, or zeros when wind is nil.
func (c Codec) Encode(p perimeter.Perimeter, wind *units.Wind) (Vector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rs, err := perimeter.Resample(p.EnsureCCW(), c.Vertices)
	if err != nil {
		return nil, fmt.Errorf("encode perimeter: %w", err)
	}
	return c.pack(rs, wind), nil
}

// EncodeAligned resamples p, rotates it to best match ref and flattens it.
// ref must already have the codec's vertex count.
func (c Codec) EncodeAligned(p perimeter.Perimeter, wind *units.Wind, ref perimeter.Perimeter) (Vector, perimeter.Alignment, error) {
	if err := c.Validate(); err != nil {
		return nil, perimeter.Alignment{}, err
	}
	rs, err := perimeter.Resample(p.EnsureCCW(), c.Vertices)
	if err != nil {
		return nil, perimeter.Alignment{}, fmt.Errorf("encode perimeter: %w", err)
	}
	aligned, a, err := perimeter.AlignTo(ref, rs)
	if err != nil {
		return nil, perimeter.Alignment{}, fmt.Errorf("align to reference: %w", err)
	}
	return c.pack(aligned, wind), a, nil
}

func (c Codec) pack(p perimeter.Perimeter, wind *units.Wind) Vector {
	v := make(Vector, 0, c.Dim())
	v = append(v, p.Flatten()...)
	if c.CarryWind {
		var wx, wy float64
		if wind != nil {
			wx, wy = wind.Components()
		}
		v = append(v, wx, wy)
	}
	return v
}

// Points returns the vertex ring stored in v without any repair.
func (c Codec) Points(v Vector) (perimeter.Perimeter, error) {
	if len(v) != c.Dim() {
		return nil, fmt.Errorf("got %d entries, want %d: %w", len(v), c.Dim(), ErrDimension)
	}
	return perimeter.FromFlat(v[:c.ObsDim()]), nil
}

// Decode rebuilds the perimeter stored in v and repairs it into a simple,
// counter-clockwise ring. The result may have fewer vertices than the codec
// when repair discards a self-intersecting loop.
func (c Codec) Decode(v Vector) (perimeter.Perimeter, error) {
	pts, err := c.Points(v)
	if err != nil {
		return nil, err
	}
	p, err := validity.RepairPerimeter(pts)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return p, nil
}

// Positions returns the coordinate prefix of v, the part an observation
// operator selects.
func (c Codec) Positions(v Vector) Vector {
	return v[:c.ObsDim()]
}

// Wind returns the wind carried in v. ok is false when the codec does not
// carry wind.
func (c Codec) Wind(v Vector) (w units.Wind, ok bool) {
	if !c.CarryWind || len(v) != c.Dim() {
		return units.Wind{}, false
	}
	return units.WindFromComponents(v[len(v)-2], v[len(v)-1]), true
}

// SetWind overwrites the wind entries of v in place. It is a no-op for
// codecs that do not carry wind.
func (c Codec) SetWind(v Vector, w units.Wind) {
	if !c.CarryWind || len(v) != c.Dim() {
		return
	}
	v[len(v)-2], v[len(v)-1] = w.Components()
}

// Stack packs vectors as the columns of a dims x len(vs) matrix.
func Stack(vs []Vector) *mat.Dense {
	if len(vs) == 0 {
		return nil
	}
	m := mat.NewDense(len(vs[0]), len(vs), nil)
	for j, v := range vs {
		m.SetCol(j, v)
	}
	return m
}

// Column copies column j of m into a new vector.
func Column(m mat.Matrix, j int) Vector {
	return Vector(mat.Col(nil, j, m))
}
