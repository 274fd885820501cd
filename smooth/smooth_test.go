package smooth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightDisabledWhenCoeffZero(t *testing.T) {
	assert.Equal(t, 0.7, Weight(0.7, 0.2, 0))
}

func TestWeightBlendsTowardPrevious(t *testing.T) {
	assert := assert.New(t)

	w := Weight(1.0, 0.0, 0.5)
	assert.InDelta(0.5, w, 1e-9)

	w = Weight(0.8, 0.8, 0.9)
	assert.InDelta(0.8, w, 1e-9)
}
