package matrix

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Format returns matrix formatter for printing matrices
func Format(m mat.Matrix) fmt.Formatter {
	return mat.Formatted(m, mat.Prefix(""), mat.Squeeze())
}

// ToSymDense converts m to SymDense (symmetric Dense matrix) if possible.
// It returns error if the provided Dense matrix is not symmetric. The
// tracker's Config.validate uses this to reject a non-symmetric P0 prior
// before it ever reaches a Kalman update.
func ToSymDense(m *mat.Dense) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.New("Matrix must be square")
	}

	mT := m.T()
	vals := make([]float64, r*c)
	idx := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i != j && !floats.EqualWithinAbsOrRel(mT.At(i, j), m.At(i, j), 1e-6, 1e-2) {
				return nil, fmt.Errorf("Matrix not symmetric (%d, %d): %.40f != %.40f\n%v",
					i, j, mT.At(i, j), m.At(i, j), Format(m))
			}
			vals[idx] = m.At(i, j)
			idx++
		}
	}

	return mat.NewSymDense(r, vals), nil
}

// Symmetrize forces m to be exactly symmetric by averaging it with its own
// transpose. The Kalman predict and update formulas accumulate floating
// point drift in P; this is the tolerance mechanism spec's data model calls
// for instead of a stricter Joseph-form update.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, _ := m.Dims()
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			sym.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return sym
}

// ClampEigen returns a copy of sym with every eigenvalue below floor raised
// to floor; when no eigenvalue is below floor it returns sym itself. It is the numeric-recovery primitive used when a covariance
// matrix has collapsed to the point that a downstream solve or Cholesky
// factorization would otherwise fail or return a non-finite result.
func ClampEigen(sym *mat.SymDense, floor float64) *mat.SymDense {
	n := sym.Symmetric()

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		// Factorization itself failed: fall back to a diagonal floor
		// bump, which is always well defined.
		out := mat.NewSymDense(n, nil)
		out.CopySym(sym)
		for i := 0; i < n; i++ {
			out.SetSym(i, i, out.At(i, i)+floor)
		}
		return out
	}

	vals := eig.Values(nil)
	changed := false
	for i := range vals {
		if vals[i] < floor {
			vals[i] = floor
			changed = true
		}
	}
	if !changed {
		return sym
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	diag := mat.NewDiagDense(n, vals)
	tmp := new(mat.Dense)
	tmp.Mul(&vecs, diag)
	tmp.Mul(tmp, vecs.T())

	return Symmetrize(tmp)
}

// Dot3 returns the dot product of two 3-vectors.
func Dot3(a, b []float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Cross3 returns the cross product of two 3-vectors.
func Cross3(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// AngleBetween returns the angle in radians between two 3-vectors, computed
// as atan2(‖a×b‖, a·b) so it stays well conditioned for both near-parallel
// and near-antiparallel inputs, unlike acos(cos) of the normalized dot
// product.
func AngleBetween(a, b []float64) float64 {
	c := Cross3(a, b)
	normCross := math.Sqrt(Dot3(c, c))
	return math.Atan2(normCross, Dot3(a, b))
}
