package gammadist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCDFBoundary(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, CDF(0, 2, 2, 0), "F(mu) must be 0")
	assert.Equal(0.0, CDF(5, 2, 2, 5), "F(mu) must be 0 for nonzero mu")
}

func TestCDFMonotone(t *testing.T) {
	assert := assert.New(t)

	alpha, beta, mu := 2.0, 1.5, 0.0
	prev := 0.0
	for x := 0.0; x <= 20; x += 0.25 {
		v := CDF(x, alpha, beta, mu)
		assert.GreaterOrEqual(v, prev, "CDF must be non-decreasing")
		assert.GreaterOrEqual(v, 0.0)
		assert.Less(v, 1.0)
		prev = v
	}
}

func TestCDFConvergesToOne(t *testing.T) {
	assert := assert.New(t)

	v := CDF(10000, 2, 1, 0)
	assert.True(math.Abs(1-v) < 1e-6)
}

func TestCDFPanicsOutsideDomain(t *testing.T) {
	assert := assert.New(t)

	assert.Panics(func() { CDF(-1, 2, 1, 0) })
	assert.Panics(func() { CDF(1, 0.5, 1, 0) })
	assert.Panics(func() { CDF(1, 2, 0, 0) })
}
