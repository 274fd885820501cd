// Package discretize converts a continuous-time linear stochastic
// differential equation into its exact discrete-time equivalent, using
// Van Loan's matrix-fraction decomposition instead of Euler/closed-form
// integration so that the process-noise covariance Q is exact rather than
// approximate.
package discretize

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Discretize builds the state-transition matrix A and process-noise
// covariance Q of the exact discrete-time equivalent of
//
//	dx/dt = F x + L w,  w ~ N(0, Qc)
//
// evaluated at integer multiples of dt, i.e. x[k] = A x[k-1] + q,
// q ~ N(0, Q).
//
// L defaults to the identity and Qc to the zero matrix when nil, matching
// a noiseless system. Discretize returns an error if F is not
// square or if the matrix-fraction decomposition's linear solve fails
// (meaning D, see below, is singular) -- callers constructing a tracker
// from this must treat that as a configuration error.
func Discretize(F, L, Qc *mat.Dense, dt float64) (A, Q *mat.Dense, err error) {
	n, nc := F.Dims()
	if n != nc {
		return nil, nil, fmt.Errorf("discretize: drift matrix must be square, got %dx%d", n, nc)
	}

	if L == nil {
		L = identity(n)
	}
	lr, _ := L.Dims()
	if lr != n {
		return nil, nil, fmt.Errorf("discretize: noise-effect matrix L must have %d rows, got %d", n, lr)
	}

	_, qcols := L.Dims()
	if Qc == nil {
		Qc = mat.NewDense(qcols, qcols, nil)
	}

	// A = exp(F * dt)
	scaledF := new(mat.Dense)
	scaledF.Scale(dt, F)
	A = new(mat.Dense)
	A.Exp(scaledF)

	// Matrix-fraction decomposition: build the 2N x 2N block matrix
	//
	//   Phi = [ F        L Qc L^T ]
	//         [ 0           -F^T  ]
	//
	// B = exp(Phi * dt) partitions into [[*, C], [*, D]] (we only need the
	// right-hand N columns); Q = C * D^-1.
	lqlt := new(mat.Dense)
	lqlt.Mul(L, Qc)
	lqlt.Mul(lqlt, L.T())

	phi := mat.NewDense(2*n, 2*n, nil)
	phi.Slice(0, n, 0, n).(*mat.Dense).Copy(F)
	phi.Slice(0, n, n, 2*n).(*mat.Dense).Copy(lqlt)
	negFt := new(mat.Dense)
	negFt.Scale(-1, F.T())
	phi.Slice(n, 2*n, n, 2*n).(*mat.Dense).Copy(negFt)
	phi.Scale(dt, phi)

	B := new(mat.Dense)
	B.Exp(phi)

	C := mat.DenseCopyOf(B.Slice(0, n, n, 2*n))
	D := mat.DenseCopyOf(B.Slice(n, 2*n, n, 2*n))

	// Q = C * D^-1, computed as the transpose of the solution of
	// D^T * X = C^T so the caller gets Q back in row-major orientation
	// without ever forming D^-1 explicitly.
	var xt mat.Dense
	if err := xt.Solve(D.T(), C.T()); err != nil {
		return nil, nil, fmt.Errorf("discretize: matrix-fraction solve failed: %v", err)
	}
	Q = new(mat.Dense)
	Q.CloneFrom(xt.T())

	return A, Q, nil
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
