// Package rand implements the draws the tracker's particle filter needs on
// top of a single RNG instance it owns: roulette-wheel/categorical draws
// (used to choose one association event per particle) and stratified
// resampling (used to redraw the whole particle set when its effective
// sample size collapses). Both work on the discrete CDF the teacher's
// fixed-N RouletteDrawN searched (DrawOne by binary search, Stratified by a
// single linear pass), but now parameterised over an explicit Source so a tracker's runs are
// reproducible from a fixed seed instead of drawing from process-global
// randomness.
package rand

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Source is the minimal uniform-random primitive the resampling and event
// sampling machinery needs. *golang.org/x/exp/rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// EffectiveSampleSize returns 1/sum(w_i^2) for a normalised weight vector
// w, the standard measure of how many particles are effectively carrying
// the posterior.
func EffectiveSampleSize(w []float64) float64 {
	var sumSq float64
	for _, wi := range w {
		sumSq += wi * wi
	}
	if sumSq == 0 {
		return 0
	}
	return 1 / sumSq
}

// DrawOne draws a single index from the categorical distribution defined
// by the (not necessarily normalised) weights in p, using src for its one
// required uniform draw. It is RouletteDrawN specialised to n=1 and an
// injectable source, the mechanism the update step uses to choose one
// association event per particle.
//
// It returns an error if p is empty or its weights sum to zero or less.
func DrawOne(p []float64, src Source) (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("rand: empty probability weights")
	}

	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)
	total := cdf[len(cdf)-1]
	if total <= 0 {
		return 0, fmt.Errorf("rand: probability weights sum to zero")
	}

	val := src.Float64() * total
	return sort.Search(len(cdf), func(i int) bool { return cdf[i] > val }), nil
}

// Stratified performs stratified resampling over the (not necessarily
// normalised) weights in w and returns Np = len(w) indices into w: for
// j = 1..Np it draws u_j ~ U[(j-1)/Np, j/Np) and emits the index i such
// that cum[i-1] <= u_j < cum[i]. Because both the stratum boundaries and
// the cumulative weights are monotone increasing in j, the whole draw is a
// single linear pass over the CDF rather than Np independent binary
// searches.
func Stratified(w []float64, src Source) ([]int, error) {
	n := len(w)
	if n == 0 {
		return nil, fmt.Errorf("rand: empty probability weights")
	}

	cdf := make([]float64, n)
	floats.CumSum(cdf, w)
	total := cdf[len(cdf)-1]
	if total <= 0 {
		return nil, fmt.Errorf("rand: probability weights sum to zero")
	}
	floats.Scale(1/total, cdf)

	indices := make([]int, n)
	i := 0
	for j := 0; j < n; j++ {
		u := (src.Float64() + float64(j)) / float64(n)
		for i < n-1 && cdf[i] <= u {
			i++
		}
		indices[j] = i
	}
	return indices, nil
}
