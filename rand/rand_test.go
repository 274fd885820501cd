package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fixedSource returns a deterministic, cycling sequence of draws -- handy
// for pinning down exactly which CDF bucket a draw lands in.
type fixedSource struct {
	vals []float64
	i    int
}

func (f *fixedSource) Float64() float64 {
	v := f.vals[f.i%len(f.vals)]
	f.i++
	return v
}

func TestEffectiveSampleSize(t *testing.T) {
	assert := assert.New(t)

	equal := []float64{0.25, 0.25, 0.25, 0.25}
	assert.InDelta(4.0, EffectiveSampleSize(equal), 1e-9)

	degenerate := []float64{1, 0, 0, 0}
	assert.InDelta(1.0, EffectiveSampleSize(degenerate), 1e-9)

	assert.Equal(0.0, EffectiveSampleSize(nil))
}

func TestDrawOneErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := DrawOne(nil, &fixedSource{vals: []float64{0.5}})
	assert.Error(err)

	_, err = DrawOne([]float64{0, 0, 0}, &fixedSource{vals: []float64{0.5}})
	assert.Error(err)
}

func TestDrawOnePicksExpectedBucket(t *testing.T) {
	assert := assert.New(t)

	p := []float64{0.1, 0.2, 0.7}
	// cdf = [0.1, 0.3, 1.0]; src picks 0.05 -> bucket 0
	idx, err := DrawOne(p, &fixedSource{vals: []float64{0.05}})
	assert.NoError(err)
	assert.Equal(0, idx)

	// 0.25 -> bucket 1
	idx, err = DrawOne(p, &fixedSource{vals: []float64{0.25}})
	assert.NoError(err)
	assert.Equal(1, idx)

	// 0.99 -> bucket 2
	idx, err = DrawOne(p, &fixedSource{vals: []float64{0.99}})
	assert.NoError(err)
	assert.Equal(2, idx)
}

func TestStratifiedEqualWeightsGivesEachIndexOnce(t *testing.T) {
	assert := assert.New(t)

	w := []float64{0.25, 0.25, 0.25, 0.25}
	// every stratum draw is the midpoint, landing squarely on its own slot
	idx, err := Stratified(w, &fixedSource{vals: []float64{0.5}})
	assert.NoError(err)

	counts := make(map[int]int)
	for _, i := range idx {
		counts[i]++
	}
	for i := 0; i < len(w); i++ {
		assert.Equal(1, counts[i], "index %d must have multiplicity exactly 1", i)
	}
}

func TestStratifiedSumOfMultiplicitiesIsNp(t *testing.T) {
	assert := assert.New(t)

	w := []float64{0.5, 0.3, 0.1, 0.1}
	idx, err := Stratified(w, &fixedSource{vals: []float64{0.1, 0.9, 0.4, 0.6}})
	assert.NoError(err)
	assert.Equal(len(w), len(idx))
	for _, i := range idx {
		assert.GreaterOrEqual(i, 0)
		assert.Less(i, len(w))
	}
}

func TestStratifiedErrorsOnZeroWeights(t *testing.T) {
	assert := assert.New(t)

	_, err := Stratified([]float64{0, 0, 0}, &fixedSource{vals: []float64{0.5}})
	assert.Error(err)

	_, err = Stratified(nil, &fixedSource{vals: []float64{0.5}})
	assert.Error(err)
}
