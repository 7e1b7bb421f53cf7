package enkf

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// pinv returns the Moore-Penrose pseudo-inverse of a from its thin SVD.
// Singular values at or below rcond times the largest are treated as zero.
func pinv(a mat.Matrix, rcond float64) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition did not converge")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cut := rcond * s[0]
	inv := make([]float64, len(s))
	for i, x := range s {
		if x > cut && x > 0 {
			inv[i] = 1 / x
		}
	}

	var vs mat.Dense
	vs.Mul(&v, mat.NewDiagDense(len(inv), inv))
	var out mat.Dense
	out.Mul(&vs, u.T())
	return &out, nil
}

// identityResidual is the largest absolute entry of a*b - I.
func identityResidual(a, b mat.Matrix) float64 {
	var prod mat.Dense
	prod.Mul(a, b)
	r, c := prod.Dims()
	var worst float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if d := math.Abs(prod.At(i, j) - want); d > worst || math.IsNaN(d) {
				worst = d
			}
		}
	}
	return worst
}

// rowMean averages the columns of m.
func rowMean(m *mat.Dense) []float64 {
	r, c := m.Dims()
	mean := make([]float64, r)
	for i := range mean {
		mean[i] = mat.Sum(m.RowView(i)) / float64(c)
	}
	return mean
}

// deviations subtracts mean from every column of m.
func deviations(m *mat.Dense, mean []float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, _ int, v float64) float64 { return v - mean[i] }, m)
	return out
}

// sampleCovariance returns e*e^T/m + floor*I for deviations e with m columns.
func sampleCovariance(e *mat.Dense, floor float64) *mat.SymDense {
	r, c := e.Dims()
	p := mat.NewSymDense(r, nil)
	p.SymOuterK(1/float64(c), e)
	if floor != 0 {
		for i := 0; i < r; i++ {
			p.SetSym(i, i, p.At(i, i)+floor)
		}
	}
	return p
}

// crossCovariance returns a*b^T/m for deviations a and b with m columns.
func crossCovariance(a, b *mat.Dense) *mat.Dense {
	_, c := a.Dims()
	var out mat.Dense
	out.Mul(a, b.T())
	out.Scale(1/float64(c), &out)
	return &out
}
