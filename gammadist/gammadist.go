// Package gammadist computes the CDF of a shifted, scaled Gamma
// distribution, the building block of the tracker's gamma-distributed
// target lifetime model.
package gammadist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
)

// CDF returns F(x; alpha, beta, mu) = P(alpha, (x-mu)/beta), where P is the
// regularised lower incomplete gamma function. alpha is the shape
// parameter, beta the scale parameter and mu the location (shift).
//
// The distribution's support starts at mu: CDF panics if called with
// x < mu, alpha < 1 or beta <= 0, since those indicate a caller bug rather
// than a recoverable runtime condition (see spec's "Required domain").
func CDF(x, alpha, beta, mu float64) float64 {
	if beta <= 0 {
		panic(fmt.Sprintf("gammadist: invalid scale beta=%v", beta))
	}
	if alpha < 1 {
		panic(fmt.Sprintf("gammadist: invalid shape alpha=%v", alpha))
	}
	if x < mu {
		panic(fmt.Sprintf("gammadist: x=%v below location mu=%v", x, mu))
	}

	z := (x - mu) / beta
	if z == 0 {
		return 0
	}

	p := mathext.GammaIncReg(alpha, z)
	// GammaIncReg is already in [0, 1]; clamp the open upper bound the
	// spec requires (a draw exactly at 1 would make later ratios of
	// 1-F divide by zero).
	if p >= 1 {
		return math.Nextafter(1, 0)
	}
	if p < 0 {
		return 0
	}
	return p
}
