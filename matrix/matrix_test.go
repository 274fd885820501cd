package matrix

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestFormat(t *testing.T) {
	assert := assert.New(t)

	out := `⎡1.2  3.4⎤
⎣4.5  6.7⎦`
	data := []float64{1.2, 3.4, 4.5, 6.7}
	m := mat.NewDense(2, 2, data)
	assert.NotNil(m)

	format := Format(m)
	tstOut := fmt.Sprintf("%v", format)
	assert.Equal(out, tstOut)
}

func TestToSymDense(t *testing.T) {
	assert := assert.New(t)

	badMx := mat.NewDense(2, 1, []float64{0.5, 1.0})
	notSymMx := mat.NewDense(2, 2, []float64{0.5, 1.0, 2.0, 2.0})
	symMx := mat.NewDense(2, 2, []float64{0.5, 1.0, 1.0, 2.0})

	sym, err := ToSymDense(badMx)
	assert.Nil(sym)
	assert.Error(err)

	sym, err = ToSymDense(notSymMx)
	assert.Nil(sym)
	assert.Error(err)

	sym, err = ToSymDense(symMx)
	assert.NotNil(sym)
	assert.NoError(err)
}

func TestSymmetrize(t *testing.T) {
	assert := assert.New(t)

	// slightly asymmetric due to simulated floating point drift
	d := mat.NewDense(2, 2, []float64{1.0, 2.0001, 1.9999, 3.0})
	sym := Symmetrize(d)

	assert.InDelta(1.0, sym.At(0, 0), 1e-9)
	assert.InDelta(3.0, sym.At(1, 1), 1e-9)
	assert.InDelta(2.0, sym.At(0, 1), 1e-3)
	assert.Equal(sym.At(0, 1), sym.At(1, 0))
}

func TestClampEigen(t *testing.T) {
	assert := assert.New(t)

	sym := mat.NewSymDense(2, []float64{1e-12, 0, 0, 1.0})
	clamped := ClampEigen(sym, 1e-6)

	var eig mat.EigenSym
	ok := eig.Factorize(clamped, false)
	assert.True(ok)
	for _, v := range eig.Values(nil) {
		assert.GreaterOrEqual(v, 1e-6-1e-12)
	}

	// a matrix already above floor is returned unchanged
	wellConditioned := mat.NewSymDense(2, []float64{1.0, 0, 0, 1.0})
	assert.True(mat.Equal(wellConditioned, ClampEigen(wellConditioned, 1e-6)))
}

func TestAngleBetween(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(0, AngleBetween([]float64{1, 0, 0}, []float64{2, 0, 0}), 1e-9)
	assert.InDelta(math.Pi, AngleBetween([]float64{1, 0, 0}, []float64{-3, 0, 0}), 1e-9)
	assert.InDelta(math.Pi/2, AngleBetween([]float64{1, 0, 0}, []float64{0, 5, 0}), 1e-9)
}
