// Package ckf implements the tracker's six-dimensional constant-velocity
// Kalman filter: prediction and measurement update over a state of 3D
// position and 3D velocity, observed through a 3D position measurement.
// It is specialised to the fixed linear model the tracker needs and
// additionally returns the innovation likelihood every particle's event
// enumeration needs for importance sampling.
package ckf

import (
	"fmt"
	"math"

	"github.com/milosgajdos/rbpf/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// EigenFloor is the minimum eigenvalue a recovered covariance matrix is
// clamped to when a solve or likelihood evaluation hits a collapsed
// covariance (spec's NumericError recovery policy).
const EigenFloor = 1e-9

// Filter holds the tracker's global, read-only model matrices: the state
// transition A and process noise Q (both 6x6), and the measurement matrix
// H (3x6) and measurement noise R (3x3).
type Filter struct {
	A, Q *mat.Dense
	H, R *mat.Dense
}

// New validates the model matrix dimensions and returns a Filter.
func New(A, Q, H, R *mat.Dense) (*Filter, error) {
	ar, ac := A.Dims()
	if ar != 6 || ac != 6 {
		return nil, fmt.Errorf("ckf: state transition matrix must be 6x6, got %dx%d", ar, ac)
	}
	qr, qc := Q.Dims()
	if qr != 6 || qc != 6 {
		return nil, fmt.Errorf("ckf: process noise matrix must be 6x6, got %dx%d", qr, qc)
	}
	hr, hc := H.Dims()
	if hr != 3 || hc != 6 {
		return nil, fmt.Errorf("ckf: measurement matrix must be 3x6, got %dx%d", hr, hc)
	}
	rr, rc := R.Dims()
	if rr != 3 || rc != 3 {
		return nil, fmt.Errorf("ckf: measurement noise matrix must be 3x3, got %dx%d", rr, rc)
	}
	return &Filter{A: A, Q: Q, H: H, R: R}, nil
}

// Predict advances a target's mean and covariance by one dt step:
//
//	M <- A*M
//	P <- A*P*A^T + Q
func (f *Filter) Predict(mean *mat.VecDense, cov *mat.SymDense) (*mat.VecDense, *mat.SymDense) {
	mNext := new(mat.VecDense)
	mNext.MulVec(f.A, mean)

	cNext := new(mat.Dense)
	cNext.Mul(f.A, cov)
	cNext.Mul(cNext, f.A.T())
	cNext.Add(cNext, f.Q)

	return mNext, matrix.Symmetrize(cNext)
}

// Update corrects a target's mean and covariance with a 3D measurement y
// and returns the updated mean, covariance and the Gaussian innovation
// likelihood N(y; IM, IS). It returns an error only when the innovation
// covariance cannot be recovered even after an eigenvalue-floor retry;
// callers should treat that as this particle/target's NumericError.
func (f *Filter) Update(mean *mat.VecDense, cov *mat.SymDense, y *mat.VecDense) (*mat.VecDense, *mat.SymDense, float64, error) {
	return f.update(mean, cov, y, false)
}

func (f *Filter) update(mean *mat.VecDense, cov *mat.SymDense, y *mat.VecDense, retried bool) (*mat.VecDense, *mat.SymDense, float64, error) {
	im := new(mat.VecDense)
	im.MulVec(f.H, mean)

	hp := new(mat.Dense)
	hp.Mul(f.H, cov)

	isDense := new(mat.Dense)
	isDense.Mul(hp, f.H.T())
	isDense.Add(isDense, f.R)
	isSym := matrix.Symmetrize(isDense)

	phT := new(mat.Dense)
	phT.Mul(cov, f.H.T())

	// Kalman gain K is the solution X of X*IS = P*H^T. IS is symmetric,
	// so solving IS*X^T = (P*H^T)^T and transposing back avoids ever
	// forming IS^-1 explicitly (the same transposed-solve trick the
	// discretiser uses for Q).
	var gainT mat.Dense
	if err := gainT.Solve(isSym, phT.T()); err != nil {
		if retried {
			return nil, nil, 0, fmt.Errorf("ckf: innovation covariance solve failed: %v", err)
		}
		flooredCov := matrix.ClampEigen(cov, EigenFloor)
		return f.update(mean, flooredCov, y, true)
	}
	gain := new(mat.Dense)
	gain.CloneFrom(gainT.T())

	innovation := new(mat.VecDense)
	innovation.SubVec(y, im)

	corr := new(mat.Dense)
	corr.Mul(gain, innovation)
	mOut := new(mat.VecDense)
	mOut.AddVec(mean, corr.ColView(0))

	kis := new(mat.Dense)
	kis.Mul(gain, isSym)
	kisk := new(mat.Dense)
	kisk.Mul(kis, gain.T())
	pOutDense := new(mat.Dense)
	pOutDense.Sub(cov, kisk)
	pOut := matrix.Symmetrize(pOutDense)

	meanSlice := []float64{im.AtVec(0), im.AtVec(1), im.AtVec(2)}
	dist, ok := distmv.NewNormal(meanSlice, isSym, nil)
	if !ok {
		if retried {
			return nil, nil, 0, fmt.Errorf("ckf: innovation covariance is not positive-definite")
		}
		flooredCov := matrix.ClampEigen(cov, EigenFloor)
		return f.update(mean, flooredCov, y, true)
	}

	ySlice := []float64{y.AtVec(0), y.AtVec(1), y.AtVec(2)}
	likelihood := math.Exp(dist.LogProb(ySlice))

	return mOut, pOut, likelihood, nil
}
